package evaluation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
)

var ErrScheduleNotFound = errors.New("schedule not found")

type (
	// Repository persists scoring facts. Score inserts are append-only;
	// the storage schema additionally carries a uniqueness constraint per
	// (schedule, student-or-group, panelist) key, so a gate race cannot
	// produce duplicate scoring facts.
	Repository interface {
		CreateIndividualScore(ctx context.Context, sc IndividualScore) (IndividualScore, error)
		CreateSystemScore(ctx context.Context, sc SystemScore) (SystemScore, error)
		// HasPanelistEvaluated reports whether the panelist holds any score
		// record (individual or system) for the (group, stage) pair.
		// Panelist names compare by normalized key.
		HasPanelistEvaluated(ctx context.Context, panelist, groupID string, stage defense.Stage) (bool, error)

		GetGrade(ctx context.Context, studentID string, stage defense.Stage) (*GradeRecord, error)
		UpsertGrade(ctx context.Context, rec GradeRecord) error
		// QueryMissingGrades returns the subset of studentIDs without a
		// non-null grade for the stage.
		QueryMissingGrades(ctx context.Context, studentIDs []string, stage defense.Stage) ([]string, error)
	}

	// ScheduleResolver resolves a stage instance for score submission.
	ScheduleResolver interface {
		GetScheduleByID(ctx context.Context, id string) (*defense.Schedule, error)
	}

	Service interface {
		SubmitIndividual(ctx context.Context, in NewIndividualScore) (IndividualScore, error)
		SubmitSystem(ctx context.Context, in NewSystemScore) (SystemScore, error)
		PutGrade(ctx context.Context, enteredBy, studentID string, stage defense.Stage, grade *float64) error
		PutGroupGrades(ctx context.Context, enteredBy string, stage defense.Stage, grades map[string]*float64) error
	}

	service struct {
		repo      Repository
		schedules ScheduleResolver
		gate      *defense.Gate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, schedules ScheduleResolver, gate *defense.Gate) Service {
	return &service{repo: repo, schedules: schedules, gate: gate}
}

// SubmitIndividual validates and persists a panelist's per-student
// rubric. Submission is all-or-nothing and non-idempotent: the
// sequential gate (and its already-evaluated check) must pass first.
func (svc *service) SubmitIndividual(ctx context.Context, in NewIndividualScore) (IndividualScore, error) {
	if err := validateScores(in.Scores, IndividualCriteria); err != nil {
		return IndividualScore{}, err
	}

	sched, err := svc.resolveSchedule(ctx, in.ScheduleID)
	if err != nil {
		return IndividualScore{}, err
	}
	if err := svc.gate.CanAdvance(ctx, in.Panelist, sched.GroupID, sched.Stage); err != nil {
		return IndividualScore{}, err
	}

	sc := IndividualScore{
		ScheduleID: sched.ID,
		GroupID:    sched.GroupID,
		Stage:      sched.Stage,
		StudentID:  in.StudentID,
		Panelist:   core.CleanString(in.Panelist),
		Scores:     in.Scores,
		Total:      sumScores(in.Scores),
		CreatedAt:  time.Now().UTC(),
	}
	return svc.repo.CreateIndividualScore(ctx, sc)
}

// SubmitSystem validates and persists a panelist's group system rubric.
func (svc *service) SubmitSystem(ctx context.Context, in NewSystemScore) (SystemScore, error) {
	if err := validateScores(in.Scores, SystemCriteria); err != nil {
		return SystemScore{}, err
	}

	sched, err := svc.resolveSchedule(ctx, in.ScheduleID)
	if err != nil {
		return SystemScore{}, err
	}
	if err := svc.gate.CanAdvance(ctx, in.Panelist, sched.GroupID, sched.Stage); err != nil {
		return SystemScore{}, err
	}

	sc := SystemScore{
		ScheduleID: sched.ID,
		GroupID:    sched.GroupID,
		Stage:      sched.Stage,
		Panelist:   core.CleanString(in.Panelist),
		Scores:     in.Scores,
		Total:      sumScores(in.Scores),
		CreatedAt:  time.Now().UTC(),
	}
	return svc.repo.CreateSystemScore(ctx, sc)
}

func (svc *service) resolveSchedule(ctx context.Context, id string) (*defense.Schedule, error) {
	sched, err := svc.schedules.GetScheduleByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "resolving schedule")
	}
	if sched == nil {
		return nil, errors.Wrapf(ErrScheduleNotFound, "%q", id)
	}
	return sched, nil
}

// PutGrade upserts one instructor grade; nil clears it.
func (svc *service) PutGrade(ctx context.Context, enteredBy, studentID string, stage defense.Stage, grade *float64) error {
	if grade != nil && (*grade < 0 || *grade > 100) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "grade", Error: "grade must be between 0 and 100",
		})
	}
	rec := GradeRecord{
		StudentID: studentID,
		Stage:     stage,
		Grade:     grade,
		EnteredBy: enteredBy,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpsertGrade(ctx, rec)
}

// PutGroupGrades writes all member grades for a stage; partial
// failures are collected and reported per student id, never silently
// swallowed.
func (svc *service) PutGroupGrades(ctx context.Context, enteredBy string, stage defense.Stage, grades map[string]*float64) error {
	ids := make([]string, 0, len(grades))
	for id := range grades {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	failed := make(map[string]error)
	for _, id := range ids {
		if err := svc.PutGrade(ctx, enteredBy, id, stage, grades[id]); err != nil {
			failed[id] = err
		}
	}
	if len(failed) > 0 {
		return &BatchError{Errors: failed}
	}
	return nil
}

// validateScores enforces the all-or-nothing rubric: every criterion
// present, integral, and within bounds; nothing extra.
func validateScores(scores map[string]int, criteria []string) error {
	var flds []core.FieldError
	for _, criterion := range criteria {
		v, ok := scores[criterion]
		if !ok || v == 0 {
			flds = append(flds, core.FieldError{Field: criterion, Error: "this criterion is required"})
			continue
		}
		if v < MinScore || v > MaxScore {
			flds = append(flds, core.FieldError{
				Field: criterion,
				Error: fmt.Sprintf("score must be between %d and %d", MinScore, MaxScore),
			})
		}
	}
	for name := range scores {
		if !containsString(criteria, name) {
			flds = append(flds, core.FieldError{Field: name, Error: "unknown criterion"})
		}
	}
	if len(flds) > 0 {
		sort.Slice(flds, func(i, j int) bool { return flds[i].Field < flds[j].Field })
		return core.NewValidationError(errors.New("invalid rubric scores"), flds...)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
