package evaluation

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
)

type fakeRepo struct {
	individual []IndividualScore
	system     []SystemScore
	grades     map[string]*GradeRecord // "student|stage"
	failGrades map[string]error        // student id -> forced error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{grades: make(map[string]*GradeRecord)}
}

func (r *fakeRepo) CreateIndividualScore(_ context.Context, sc IndividualScore) (IndividualScore, error) {
	sc.ID = fmt.Sprintf("i%d", len(r.individual)+1)
	r.individual = append(r.individual, sc)
	return sc, nil
}

func (r *fakeRepo) CreateSystemScore(_ context.Context, sc SystemScore) (SystemScore, error) {
	sc.ID = fmt.Sprintf("s%d", len(r.system)+1)
	r.system = append(r.system, sc)
	return sc, nil
}

func (r *fakeRepo) HasPanelistEvaluated(_ context.Context, panelist, groupID string, stage defense.Stage) (bool, error) {
	key := core.NormalizeKey(panelist)
	for _, sc := range r.individual {
		if core.NormalizeKey(sc.Panelist) == key && sc.GroupID == groupID && sc.Stage == stage {
			return true, nil
		}
	}
	for _, sc := range r.system {
		if core.NormalizeKey(sc.Panelist) == key && sc.GroupID == groupID && sc.Stage == stage {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) GetGrade(_ context.Context, studentID string, stage defense.Stage) (*GradeRecord, error) {
	return r.grades[studentID+"|"+stage.Key()], nil
}

func (r *fakeRepo) UpsertGrade(_ context.Context, rec GradeRecord) error {
	if err, ok := r.failGrades[rec.StudentID]; ok {
		return err
	}
	r.grades[rec.StudentID+"|"+rec.Stage.Key()] = &rec
	return nil
}

func (r *fakeRepo) QueryMissingGrades(_ context.Context, studentIDs []string, stage defense.Stage) ([]string, error) {
	var missing []string
	for _, id := range studentIDs {
		if rec := r.grades[id+"|"+stage.Key()]; rec == nil || rec.Grade == nil {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

type fakeSchedules map[string]*defense.Schedule

func (f fakeSchedules) GetScheduleByID(_ context.Context, id string) (*defense.Schedule, error) {
	return f[id], nil
}

func (f fakeSchedules) GetGroupSchedule(_ context.Context, groupID string, stage defense.Stage) (*defense.Schedule, error) {
	for _, s := range f {
		if s.GroupID == groupID && s.Stage == stage {
			return s, nil
		}
	}
	return nil, nil
}

func setup() (*fakeRepo, fakeSchedules, Service) {
	repo := newFakeRepo()
	scheds := fakeSchedules{
		"sched-title":   {ID: "sched-title", GroupID: "g1", Stage: defense.StageTitle},
		"sched-preoral": {ID: "sched-preoral", GroupID: "g1", Stage: defense.StagePreOral},
	}
	gate := defense.NewGate(repo, repo, scheds)
	return repo, scheds, NewService(repo, scheds, gate)
}

func fullScores(criteria []string, v int) map[string]int {
	scores := make(map[string]int, len(criteria))
	for _, c := range criteria {
		scores[c] = v
	}
	return scores
}

func TestSubmitIndividual_total(t *testing.T) {
	_, _, svc := setup()

	sc, err := svc.SubmitIndividual(context.Background(), NewIndividualScore{
		ScheduleID: "sched-title",
		StudentID:  "s1",
		Panelist:   "Prof. Cruz",
		Scores:     fullScores(IndividualCriteria, 4),
	})
	if err != nil {
		t.Fatalf("SubmitIndividual() error = %v", err)
	}
	if sc.Total != 28 {
		t.Errorf("Total = %d; want 28", sc.Total)
	}
	if sc.GroupID != "g1" || sc.Stage != defense.StageTitle {
		t.Errorf("stage instance = %s/%v; want g1/Title", sc.GroupID, sc.Stage)
	}
}

func TestSubmitSystem_total(t *testing.T) {
	_, _, svc := setup()

	sc, err := svc.SubmitSystem(context.Background(), NewSystemScore{
		ScheduleID: "sched-title",
		Panelist:   "Prof. Cruz",
		Scores:     fullScores(SystemCriteria, 4),
	})
	if err != nil {
		t.Fatalf("SubmitSystem() error = %v", err)
	}
	if sc.Total != 32 {
		t.Errorf("Total = %d; want 32", sc.Total)
	}
}

func TestSubmitIndividual_validation(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	// missing criterion
	scores := fullScores(IndividualCriteria, 3)
	delete(scores, IndividualCriteria[2])
	_, err := svc.SubmitIndividual(ctx, NewIndividualScore{
		ScheduleID: "sched-title", StudentID: "s1", Panelist: "P1", Scores: scores,
	})
	assertValidationNames(t, err, IndividualCriteria[2])

	// zero is treated as absent
	scores = fullScores(IndividualCriteria, 3)
	scores[IndividualCriteria[0]] = 0
	_, err = svc.SubmitIndividual(ctx, NewIndividualScore{
		ScheduleID: "sched-title", StudentID: "s1", Panelist: "P1", Scores: scores,
	})
	assertValidationNames(t, err, IndividualCriteria[0])

	// out of range
	scores = fullScores(IndividualCriteria, 3)
	scores[IndividualCriteria[1]] = 5
	_, err = svc.SubmitIndividual(ctx, NewIndividualScore{
		ScheduleID: "sched-title", StudentID: "s1", Panelist: "P1", Scores: scores,
	})
	assertValidationNames(t, err, IndividualCriteria[1])

	// unknown criterion
	scores = fullScores(IndividualCriteria, 3)
	scores["charisma"] = 4
	_, err = svc.SubmitIndividual(ctx, NewIndividualScore{
		ScheduleID: "sched-title", StudentID: "s1", Panelist: "P1", Scores: scores,
	})
	assertValidationNames(t, err, "charisma")
}

func assertValidationNames(t *testing.T, err error, field string) {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		t.Fatalf("error = %v; want *core.ValidationError", err)
	}
	for _, f := range vErr.Fields {
		if f.Field == field {
			return
		}
	}
	t.Errorf("ValidationError fields %v; want %q named", vErr.Fields, field)
}

func TestSubmitIndividual_sequentialGate(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	// Pre-Oral before Title: denied
	_, err := svc.SubmitIndividual(ctx, NewIndividualScore{
		ScheduleID: "sched-preoral",
		StudentID:  "s1",
		Panelist:   "Prof. Cruz",
		Scores:     fullScores(IndividualCriteria, 3),
	})
	if !defense.IsGateDenied(err) {
		t.Fatalf("error = %v; want gate denial", err)
	}

	// submit Title, then the same Pre-Oral call succeeds
	_, err = svc.SubmitIndividual(ctx, NewIndividualScore{
		ScheduleID: "sched-title",
		StudentID:  "s1",
		Panelist:   "Prof. Cruz",
		Scores:     fullScores(IndividualCriteria, 3),
	})
	if err != nil {
		t.Fatalf("Title submission error = %v", err)
	}
	_, err = svc.SubmitIndividual(ctx, NewIndividualScore{
		ScheduleID: "sched-preoral",
		StudentID:  "s1",
		Panelist:   "Prof. Cruz",
		Scores:     fullScores(IndividualCriteria, 3),
	})
	if err != nil {
		t.Errorf("Pre-Oral submission after Title error = %v", err)
	}
}

func TestSubmitIndividual_duplicateBlocked(t *testing.T) {
	_, _, svc := setup()
	ctx := context.Background()

	in := NewIndividualScore{
		ScheduleID: "sched-title",
		StudentID:  "s1",
		Panelist:   "Prof. Cruz",
		Scores:     fullScores(IndividualCriteria, 3),
	}
	if _, err := svc.SubmitIndividual(ctx, in); err != nil {
		t.Fatalf("first submission error = %v", err)
	}
	_, err := svc.SubmitIndividual(ctx, in)
	if !defense.IsGateDenied(err) {
		t.Errorf("second submission error = %v; want gate denial", err)
	}
}

func TestSubmitIndividual_unknownSchedule(t *testing.T) {
	_, _, svc := setup()
	_, err := svc.SubmitIndividual(context.Background(), NewIndividualScore{
		ScheduleID: "nope",
		StudentID:  "s1",
		Panelist:   "P1",
		Scores:     fullScores(IndividualCriteria, 3),
	})
	assert.True(t, errors.Is(errors.Cause(err), ErrScheduleNotFound) || errors.Cause(err) == ErrScheduleNotFound,
		"error = %v; want schedule not found", err)
}

func TestPutGroupGrades_aggregateError(t *testing.T) {
	repo, _, svc := setup()
	repo.failGrades = map[string]error{"s2": errors.New("boom")}
	g := 88.0

	err := svc.PutGroupGrades(context.Background(), "instructor1", defense.StageTitle,
		map[string]*float64{"s1": &g, "s2": &g, "s3": &g})

	bErr, ok := errors.Cause(err).(*BatchError)
	if !ok {
		t.Fatalf("error = %v; want *BatchError", err)
	}
	if len(bErr.Errors) != 1 || bErr.Errors["s2"] == nil {
		t.Errorf("BatchError = %v; want exactly s2 reported", bErr.Errors)
	}
	// successful keys must still have been written
	if repo.grades["s1|title"] == nil || repo.grades["s3|title"] == nil {
		t.Error("successful grade writes were lost")
	}
}

func TestPutGrade_validation(t *testing.T) {
	_, _, svc := setup()
	bad := 150.0
	err := svc.PutGrade(context.Background(), "instructor1", "s1", defense.StageTitle, &bad)
	if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
		t.Errorf("error = %v; want validation error", err)
	}
}

func TestPutGrade_clear(t *testing.T) {
	repo, _, svc := setup()
	ctx := context.Background()
	g := 90.0

	if err := svc.PutGrade(ctx, "instructor1", "s1", defense.StageTitle, &g); err != nil {
		t.Fatalf("PutGrade() error = %v", err)
	}
	missing, _ := repo.QueryMissingGrades(ctx, []string{"s1"}, defense.StageTitle)
	assert.Empty(t, missing)

	if err := svc.PutGrade(ctx, "instructor1", "s1", defense.StageTitle, nil); err != nil {
		t.Fatalf("PutGrade(nil) error = %v", err)
	}
	missing, _ = repo.QueryMissingGrades(ctx, []string{"s1"}, defense.StageTitle)
	assert.Equal(t, []string{"s1"}, missing)
}
