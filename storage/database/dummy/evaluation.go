package dummydb

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
	"github.com/capdesk/capdesk/core/evaluation"
)

type evaluationRepository struct {
	db *evaluationTable
}

var _ evaluation.Repository = (*evaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *DB) *evaluationRepository {
	return &evaluationRepository{db: db.evaluation}
}

func gradeKey(studentID string, stage defense.Stage) string {
	return fmt.Sprintf("%s|%d", studentID, stage)
}

func (repo *evaluationRepository) CreateIndividualScore(_ context.Context, sc evaluation.IndividualScore) (evaluation.IndividualScore, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := core.NormalizeKey(sc.Panelist)
	for _, existing := range repo.db.individual {
		if existing.ScheduleID == sc.ScheduleID && existing.StudentID == sc.StudentID &&
			core.NormalizeKey(existing.Panelist) == key {
			return evaluation.IndividualScore{}, defense.NewGateDeniedError("%s already evaluated", sc.Stage)
		}
	}
	sc.ID = uuid.New().String()
	repo.db.individual = append(repo.db.individual, sc)
	return sc, nil
}

func (repo *evaluationRepository) CreateSystemScore(_ context.Context, sc evaluation.SystemScore) (evaluation.SystemScore, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := core.NormalizeKey(sc.Panelist)
	for _, existing := range repo.db.system {
		if existing.ScheduleID == sc.ScheduleID && core.NormalizeKey(existing.Panelist) == key {
			return evaluation.SystemScore{}, defense.NewGateDeniedError("%s already evaluated", sc.Stage)
		}
	}
	sc.ID = uuid.New().String()
	repo.db.system = append(repo.db.system, sc)
	return sc, nil
}

func (repo *evaluationRepository) HasPanelistEvaluated(_ context.Context, panelist, groupID string, stage defense.Stage) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	key := core.NormalizeKey(panelist)
	for _, sc := range repo.db.individual {
		if core.NormalizeKey(sc.Panelist) == key && sc.GroupID == groupID && sc.Stage == stage {
			return true, nil
		}
	}
	for _, sc := range repo.db.system {
		if core.NormalizeKey(sc.Panelist) == key && sc.GroupID == groupID && sc.Stage == stage {
			return true, nil
		}
	}
	return false, nil
}

func (repo *evaluationRepository) GetGrade(_ context.Context, studentID string, stage defense.Stage) (*evaluation.GradeRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.grades[gradeKey(studentID, stage)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (repo *evaluationRepository) UpsertGrade(_ context.Context, rec evaluation.GradeRecord) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.grades[gradeKey(rec.StudentID, rec.Stage)] = &rec
	return nil
}

func (repo *evaluationRepository) QueryMissingGrades(_ context.Context, studentIDs []string, stage defense.Stage) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var missing []string
	for _, id := range studentIDs {
		if rec := repo.db.grades[gradeKey(id, stage)]; rec == nil || rec.Grade == nil {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
