package defense

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// GateDeniedError reports the specific precondition an action failed.
type GateDeniedError struct {
	Reason string
}

func NewGateDeniedError(format string, args ...interface{}) error {
	return &GateDeniedError{Reason: fmt.Sprintf(format, args...)}
}

func (err GateDeniedError) Error() string {
	return err.Reason
}

func IsGateDenied(err error) bool {
	_, ok := errors.Cause(err).(*GateDeniedError)
	return ok
}

// reviseThreshold is the number of distinct panelists with substantive
// feedback required before a slot's revision upload unlocks.
const reviseThreshold = 2

type (
	// EvaluationChecker answers whether a panelist already holds a
	// score record (individual or system) for a (group, stage) pair.
	EvaluationChecker interface {
		HasPanelistEvaluated(ctx context.Context, panelist, groupID string, stage Stage) (bool, error)
	}

	// GradeChecker reports which of the given students lack a grade
	// record for a stage.
	GradeChecker interface {
		QueryMissingGrades(ctx context.Context, studentIDs []string, stage Stage) ([]string, error)
	}

	// ScheduleSource resolves a group's schedule for a stage;
	// nil result means not yet scheduled.
	ScheduleSource interface {
		GetGroupSchedule(ctx context.Context, groupID string, stage Stage) (*Schedule, error)
	}

	// Gate derives gating decisions on every call from the evaluation
	// history; no "current stage" is ever stored.
	Gate struct {
		evals     EvaluationChecker
		grades    GradeChecker
		schedules ScheduleSource
	}
)

func NewGate(evals EvaluationChecker, grades GradeChecker, schedules ScheduleSource) *Gate {
	return &Gate{evals: evals, grades: grades, schedules: schedules}
}

// CanAdvance decides whether a panelist may submit scores for a stage.
// The gate is per panelist: one panelist's standing never affects
// another's. nil means the action is permitted.
func (g *Gate) CanAdvance(ctx context.Context, panelist, groupID string, stage Stage) error {
	sched, err := g.schedules.GetGroupSchedule(ctx, groupID, stage)
	if err != nil {
		return errors.Wrap(err, "resolving schedule")
	}
	if sched == nil {
		return NewGateDeniedError("%s defense not yet scheduled", stage)
	}

	if prev, ok := stage.Prev(); ok {
		done, err := g.evals.HasPanelistEvaluated(ctx, panelist, groupID, prev)
		if err != nil {
			return errors.Wrap(err, "checking prior evaluation")
		}
		if !done {
			return NewGateDeniedError("%s not yet evaluated", prev)
		}
	}

	// resubmission is blocked here, not by the store
	done, err := g.evals.HasPanelistEvaluated(ctx, panelist, groupID, stage)
	if err != nil {
		return errors.Wrap(err, "checking current evaluation")
	}
	if done {
		return NewGateDeniedError("%s already evaluated", stage)
	}
	return nil
}

// CanRevise reports whether a slot's revision upload is unlocked:
// at least two distinct panelists must hold a non-Pending status AND
// non-empty remarks in the reconciled view. Below the threshold the
// slot is fully locked.
func CanRevise(view FeedbackView, slot string) bool {
	fv, ok := view[normalizeSlot(slot)]
	if !ok {
		return false
	}
	var n int
	for panelist, st := range fv.StatusByPanelist {
		if st == "" || st == StatusPending {
			continue
		}
		if strings.TrimSpace(fv.RemarksByPanelist[panelist]) == "" {
			continue
		}
		n++
	}
	return n >= reviseThreshold
}

// CanSchedule decides whether a group may be scheduled for target:
// every member must hold a grade record for the preceding stage.
// Title has no prerequisite.
func (g *Gate) CanSchedule(ctx context.Context, studentIDs []string, target Stage) error {
	prev, ok := target.Prev()
	if !ok {
		return nil
	}
	missing, err := g.grades.QueryMissingGrades(ctx, studentIDs, prev)
	if err != nil {
		return errors.Wrap(err, "checking member grades")
	}
	if len(missing) > 0 {
		return NewGateDeniedError(
			"%s grades missing for members: %s", prev, strings.Join(missing, ", "))
	}
	return nil
}

// Status summarises the actor's gate standing across all stages.
func (g *Gate) Status(ctx context.Context, actor, groupID string) (GateStatus, error) {
	var gs GateStatus
	for _, stage := range Stages {
		done, err := g.evals.HasPanelistEvaluated(ctx, actor, groupID, stage)
		if err != nil {
			return GateStatus{}, errors.Wrap(err, "checking evaluation history")
		}
		switch stage {
		case StageTitle:
			gs.TitleEvaluated = done
		case StagePreOral:
			gs.PreOralEvaluated = done
		case StageFinal:
			gs.FinalEvaluated = done
		}
		if err := g.CanAdvance(ctx, actor, groupID, stage); err == nil {
			gs.CanAdvanceTo = append(gs.CanAdvanceTo, stage)
		} else if !IsGateDenied(err) {
			return GateStatus{}, err
		}
	}
	return gs, nil
}
