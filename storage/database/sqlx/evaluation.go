package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
	"github.com/capdesk/capdesk/core/evaluation"
)

type evaluationRepository struct {
	db *sqlx.DB
}

var _ evaluation.Repository = (*evaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *sqlx.DB) *evaluationRepository {
	return &evaluationRepository{db: db}
}

func packScores(scores map[string]int) ([]byte, error) {
	b, err := json.Marshal(scores)
	return b, errors.Wrap(err, "encoding scores")
}

func (repo evaluationRepository) CreateIndividualScore(ctx context.Context, sc evaluation.IndividualScore) (evaluation.IndividualScore, error) {
	sc.ID = uuid.New().String()
	scores, err := packScores(sc.Scores)
	if err != nil {
		return evaluation.IndividualScore{}, err
	}
	_, err = repo.db.ExecContext(ctx, `
		INSERT INTO individual_score (id, schedule_id, group_id, stage, student_id, panelist, panelist_key, scores, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sc.ID, sc.ScheduleID, sc.GroupID, int(sc.Stage), sc.StudentID,
		sc.Panelist, core.NormalizeKey(sc.Panelist), scores, sc.Total, sc.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return evaluation.IndividualScore{}, defense.NewGateDeniedError(
				"%s already evaluated", sc.Stage)
		}
		return evaluation.IndividualScore{}, wrapDBErr(err, "inserting individual score")
	}
	return sc, nil
}

func (repo evaluationRepository) CreateSystemScore(ctx context.Context, sc evaluation.SystemScore) (evaluation.SystemScore, error) {
	sc.ID = uuid.New().String()
	scores, err := packScores(sc.Scores)
	if err != nil {
		return evaluation.SystemScore{}, err
	}
	_, err = repo.db.ExecContext(ctx, `
		INSERT INTO system_score (id, schedule_id, group_id, stage, panelist, panelist_key, scores, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sc.ID, sc.ScheduleID, sc.GroupID, int(sc.Stage),
		sc.Panelist, core.NormalizeKey(sc.Panelist), scores, sc.Total, sc.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return evaluation.SystemScore{}, defense.NewGateDeniedError(
				"%s already evaluated", sc.Stage)
		}
		return evaluation.SystemScore{}, wrapDBErr(err, "inserting system score")
	}
	return sc, nil
}

func (repo evaluationRepository) HasPanelistEvaluated(ctx context.Context, panelist, groupID string, stage defense.Stage) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM individual_score WHERE panelist_key = $1 AND group_id = $2 AND stage = $3
			UNION
			SELECT 1 FROM system_score WHERE panelist_key = $1 AND group_id = $2 AND stage = $3
		)`, core.NormalizeKey(panelist), groupID, int(stage))
	if err != nil {
		return false, wrapDBErr(err, "checking panelist evaluation")
	}
	return exists, nil
}

type gradeRow struct {
	StudentID string       `db:"student_id"`
	Stage     int          `db:"stage"`
	Grade     null.Float64 `db:"grade"`
	EnteredBy string       `db:"entered_by"`
	UpdatedAt time.Time    `db:"updated_at"`
}

func (repo evaluationRepository) GetGrade(ctx context.Context, studentID string, stage defense.Stage) (*evaluation.GradeRecord, error) {
	var r gradeRow
	err := repo.db.GetContext(ctx, &r, `
		SELECT * FROM grade WHERE student_id = $1 AND stage = $2`, studentID, int(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err, "finding grade")
	}
	return &evaluation.GradeRecord{
		StudentID: r.StudentID,
		Stage:     defense.Stage(r.Stage),
		Grade:     r.Grade.Ptr(),
		EnteredBy: r.EnteredBy,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (repo evaluationRepository) UpsertGrade(ctx context.Context, rec evaluation.GradeRecord) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO grade (student_id, stage, grade, entered_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, stage) DO UPDATE
		SET grade = EXCLUDED.grade, entered_by = EXCLUDED.entered_by, updated_at = EXCLUDED.updated_at`,
		rec.StudentID, int(rec.Stage), null.Float64FromPtr(rec.Grade), rec.EnteredBy, rec.UpdatedAt.UTC())
	return wrapDBErr(err, "upserting grade")
}

func (repo evaluationRepository) QueryMissingGrades(ctx context.Context, studentIDs []string, stage defense.Stage) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`
		SELECT student_id FROM grade
		WHERE student_id IN (?) AND stage = ? AND grade IS NOT NULL`, studentIDs, int(stage))
	if err != nil {
		return nil, errors.Wrap(err, "building grades query")
	}
	var graded []string
	if err := repo.db.SelectContext(ctx, &graded, repo.db.Rebind(q), args...); err != nil {
		return nil, wrapDBErr(err, "querying grades")
	}

	gradedSet := make(map[string]bool, len(graded))
	for _, id := range graded {
		gradedSet[id] = true
	}
	var missing []string
	for _, id := range studentIDs {
		if !gradedSet[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
