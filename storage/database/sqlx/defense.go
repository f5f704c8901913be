package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
)

type defenseRepository struct {
	db *sqlx.DB
}

var _ defense.Repository = (*defenseRepository)(nil) // interface compliance check

func NewDefenseRepository(db *sqlx.DB) *defenseRepository {
	return &defenseRepository{db: db}
}

type feedbackEntryRow struct {
	GroupID      string    `db:"group_id"`
	Stage        int       `db:"stage"`
	FileSlot     string    `db:"file_slot"`
	Panelist     string    `db:"panelist"`
	PanelistKey  string    `db:"panelist_key"`
	Status       string    `db:"status"`
	Remarks      string    `db:"remarks"`
	AnnotatedURL string    `db:"annotated_url"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r feedbackEntryRow) unpack() defense.FeedbackEntry {
	return defense.FeedbackEntry{
		GroupID:      r.GroupID,
		Stage:        defense.Stage(r.Stage),
		FileSlot:     r.FileSlot,
		Panelist:     r.Panelist,
		Status:       defense.Status(r.Status),
		Remarks:      r.Remarks,
		AnnotatedURL: r.AnnotatedURL,
		UpdatedAt:    r.UpdatedAt,
	}
}

type fileAnnotationRow struct {
	GroupID     string    `db:"group_id"`
	Stage       int       `db:"stage"`
	FileSlot    string    `db:"file_slot"`
	Panelist    string    `db:"panelist"`
	PanelistKey string    `db:"panelist_key"`
	URL         string    `db:"url"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r fileAnnotationRow) unpack() defense.FileAnnotation {
	return defense.FileAnnotation{
		GroupID:   r.GroupID,
		Stage:     defense.Stage(r.Stage),
		FileSlot:  r.FileSlot,
		Panelist:  r.Panelist,
		URL:       r.URL,
		UpdatedAt: r.UpdatedAt,
	}
}

type submissionRow struct {
	GroupID     string    `db:"group_id"`
	Stage       int       `db:"stage"`
	FileSlot    string    `db:"file_slot"`
	OriginalURL string    `db:"original_url"`
	RevisedURL  string    `db:"revised_url"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r submissionRow) unpack() defense.Submission {
	return defense.Submission{
		GroupID:     r.GroupID,
		Stage:       defense.Stage(r.Stage),
		FileSlot:    r.FileSlot,
		OriginalURL: r.OriginalURL,
		RevisedURL:  r.RevisedURL,
		UpdatedAt:   r.UpdatedAt,
	}
}

type scheduleRow struct {
	ID          string         `db:"id"`
	GroupID     string         `db:"group_id"`
	Stage       int            `db:"stage"`
	StartsAt    time.Time      `db:"starts_at"`
	Venue       string         `db:"venue"`
	Panelists   pq.StringArray `db:"panelists"`
	PanelLocked bool           `db:"panel_locked"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r scheduleRow) unpack() defense.Schedule {
	return defense.Schedule{
		ID:          r.ID,
		GroupID:     r.GroupID,
		Stage:       defense.Stage(r.Stage),
		StartsAt:    r.StartsAt,
		Venue:       r.Venue,
		Panelists:   r.Panelists,
		PanelLocked: r.PanelLocked,
		CreatedAt:   r.CreatedAt,
	}
}

func (repo defenseRepository) GetLegacyStageStatus(ctx context.Context, groupID string, stage defense.Stage) (*defense.LegacyStageStatus, error) {
	var row struct {
		StatusJSON  []byte `db:"status_json"`
		RemarksJSON []byte `db:"remarks_json"`
	}
	err := repo.db.GetContext(ctx, &row, `
		SELECT status_json, remarks_json FROM legacy_stage_status
		WHERE group_id = $1 AND stage = $2`, groupID, int(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err, "finding legacy stage status")
	}
	return &defense.LegacyStageStatus{
		GroupID:       groupID,
		Stage:         stage,
		StatusBySlot:  defense.ParseLegacyMaps(row.StatusJSON),
		RemarksBySlot: defense.ParseLegacyMaps(row.RemarksJSON),
	}, nil
}

func (repo defenseRepository) QueryFeedbackEntries(ctx context.Context, groupID string, stage defense.Stage) ([]defense.FeedbackEntry, error) {
	var rows []feedbackEntryRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM feedback_entry
		WHERE group_id = $1 AND stage = $2
		ORDER BY file_slot, panelist_key`, groupID, int(stage))
	if err != nil {
		return nil, wrapDBErr(err, "querying feedback entries")
	}
	entries := make([]defense.FeedbackEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.unpack())
	}
	return entries, nil
}

func (repo defenseRepository) GetFeedbackEntry(ctx context.Context, groupID string, stage defense.Stage, slotKey, panelistKey string) (*defense.FeedbackEntry, error) {
	var r feedbackEntryRow
	err := repo.db.GetContext(ctx, &r, `
		SELECT * FROM feedback_entry
		WHERE group_id = $1 AND stage = $2 AND file_slot = $3 AND panelist_key = $4`,
		groupID, int(stage), slotKey, panelistKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err, "finding feedback entry")
	}
	e := r.unpack()
	return &e, nil
}

func (repo defenseRepository) UpsertFeedbackEntry(ctx context.Context, e defense.FeedbackEntry) (defense.FeedbackEntry, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO feedback_entry (group_id, stage, file_slot, panelist, panelist_key, status, remarks, annotated_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (group_id, stage, file_slot, panelist_key) DO UPDATE
		SET panelist = EXCLUDED.panelist, status = EXCLUDED.status, remarks = EXCLUDED.remarks,
		    annotated_url = EXCLUDED.annotated_url, updated_at = EXCLUDED.updated_at`,
		e.GroupID, int(e.Stage), e.FileSlot, e.Panelist, core.NormalizeKey(e.Panelist),
		string(e.Status), e.Remarks, e.AnnotatedURL, e.UpdatedAt.UTC())
	if err != nil {
		return defense.FeedbackEntry{}, wrapDBErr(err, "upserting feedback entry")
	}
	return e, nil
}

func (repo defenseRepository) QueryFileAnnotations(ctx context.Context, groupID string, stage defense.Stage) ([]defense.FileAnnotation, error) {
	var rows []fileAnnotationRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM file_annotation
		WHERE group_id = $1 AND stage = $2
		ORDER BY file_slot, panelist_key`, groupID, int(stage))
	if err != nil {
		return nil, wrapDBErr(err, "querying file annotations")
	}
	annotations := make([]defense.FileAnnotation, 0, len(rows))
	for _, r := range rows {
		annotations = append(annotations, r.unpack())
	}
	return annotations, nil
}

func (repo defenseRepository) UpsertFileAnnotation(ctx context.Context, a defense.FileAnnotation) (defense.FileAnnotation, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO file_annotation (group_id, stage, file_slot, panelist, panelist_key, url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (group_id, stage, file_slot, panelist_key) DO UPDATE
		SET panelist = EXCLUDED.panelist, url = EXCLUDED.url, updated_at = EXCLUDED.updated_at`,
		a.GroupID, int(a.Stage), core.NormalizeKey(a.FileSlot), a.Panelist, core.NormalizeKey(a.Panelist),
		a.URL, a.UpdatedAt.UTC())
	if err != nil {
		return defense.FileAnnotation{}, wrapDBErr(err, "upserting file annotation")
	}
	return a, nil
}

func (repo defenseRepository) GetSubmission(ctx context.Context, groupID string, stage defense.Stage, slotKey string) (*defense.Submission, error) {
	var r submissionRow
	err := repo.db.GetContext(ctx, &r, `
		SELECT * FROM submission
		WHERE group_id = $1 AND stage = $2 AND file_slot = $3`, groupID, int(stage), slotKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err, "finding submission")
	}
	s := r.unpack()
	return &s, nil
}

func (repo defenseRepository) QuerySubmissions(ctx context.Context, groupID string, stage defense.Stage) ([]defense.Submission, error) {
	var rows []submissionRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM submission
		WHERE group_id = $1 AND stage = $2
		ORDER BY file_slot`, groupID, int(stage))
	if err != nil {
		return nil, wrapDBErr(err, "querying submissions")
	}
	subs := make([]defense.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.unpack())
	}
	return subs, nil
}

func (repo defenseRepository) UpsertSubmission(ctx context.Context, s defense.Submission) (defense.Submission, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO submission (group_id, stage, file_slot, original_url, revised_url, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (group_id, stage, file_slot) DO UPDATE
		SET original_url = EXCLUDED.original_url, revised_url = EXCLUDED.revised_url, updated_at = EXCLUDED.updated_at`,
		s.GroupID, int(s.Stage), s.FileSlot, s.OriginalURL, s.RevisedURL, s.UpdatedAt.UTC())
	if err != nil {
		return defense.Submission{}, wrapDBErr(err, "upserting submission")
	}
	return s, nil
}

func (repo defenseRepository) CreateSchedule(ctx context.Context, s defense.Schedule) (defense.Schedule, error) {
	s.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO schedule (id, group_id, stage, starts_at, venue, panelists, panel_locked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.GroupID, int(s.Stage), s.StartsAt.UTC(), s.Venue,
		pq.StringArray(s.Panelists), s.PanelLocked, s.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return defense.Schedule{}, defense.NewGateDeniedError(
				"%s defense already scheduled", s.Stage)
		}
		return defense.Schedule{}, wrapDBErr(err, "inserting schedule")
	}
	return s, nil
}

func (repo defenseRepository) GetScheduleByID(ctx context.Context, id string) (*defense.Schedule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	var r scheduleRow
	err := repo.db.GetContext(ctx, &r, `SELECT * FROM schedule WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err, "finding schedule by ID")
	}
	s := r.unpack()
	return &s, nil
}

func (repo defenseRepository) GetGroupSchedule(ctx context.Context, groupID string, stage defense.Stage) (*defense.Schedule, error) {
	var r scheduleRow
	err := repo.db.GetContext(ctx, &r, `
		SELECT * FROM schedule WHERE group_id = $1 AND stage = $2`, groupID, int(stage))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err, "finding group schedule")
	}
	s := r.unpack()
	return &s, nil
}

func (repo defenseRepository) QuerySchedulesOn(ctx context.Context, day time.Time) ([]defense.Schedule, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	var rows []scheduleRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM schedule
		WHERE starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at`, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, wrapDBErr(err, "querying schedules")
	}
	schedules := make([]defense.Schedule, 0, len(rows))
	for _, r := range rows {
		schedules = append(schedules, r.unpack())
	}
	return schedules, nil
}

func (repo defenseRepository) GetDefaultPanel(ctx context.Context, program string) ([]string, error) {
	var panelists pq.StringArray
	err := repo.db.GetContext(ctx, &panelists, `
		SELECT panelists FROM default_panel WHERE program = $1`, program)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBErr(err, "finding default panel")
	}
	return panelists, nil
}

// SetDefaultPanel seeds or replaces a program's default panel.
func (repo defenseRepository) SetDefaultPanel(ctx context.Context, program string, panelists []string) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO default_panel (program, panelists) VALUES ($1, $2)
		ON CONFLICT (program) DO UPDATE SET panelists = EXCLUDED.panelists`,
		program, pq.StringArray(panelists))
	return wrapDBErr(err, "setting default panel")
}
