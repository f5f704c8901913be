package defense

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core"
)

// conflictWindow is the minimum gap between two defenses sharing a panelist.
const conflictWindow = 60 * time.Minute

// ConflictError reports a scheduling collision as a structured report,
// never a silent failure.
type ConflictError struct {
	GroupID   string    `json:"group_id"`
	GroupName string    `json:"group_name"`
	StartsAt  time.Time `json:"starts_at"`
	Panelists []string  `json:"panelists"` // the overlapping panelists
}

func (err ConflictError) Error() string {
	return fmt.Sprintf(
		"schedule conflicts with group %q at %s (panelists: %s)",
		err.GroupName, err.StartsAt.Format("2006-01-02 15:04"), strings.Join(err.Panelists, ", "))
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

// CreateSchedule books a group's defense for a stage. Pre-Oral and
// Final require complete member grades for the preceding stage; their
// panel is inherited from the Title schedule and locked, falling back
// to the program's default panel when no Title schedule exists.
func (svc *service) CreateSchedule(ctx context.Context, groupID string, stage Stage, ns NewSchedule) (Schedule, error) {
	grp, err := svc.groups.GetGroupByID(ctx, groupID)
	if err != nil {
		return Schedule{}, err
	}

	if err := svc.gate.CanSchedule(ctx, grp.StudentIDs(), stage); err != nil {
		return Schedule{}, err
	}

	if existing, err := svc.repo.GetGroupSchedule(ctx, groupID, stage); err != nil {
		return Schedule{}, errors.Wrap(err, "checking existing schedule")
	} else if existing != nil {
		return Schedule{}, NewGateDeniedError("%s defense already scheduled", stage)
	}

	panel, locked, err := svc.resolvePanel(ctx, grp.Program, groupID, stage, ns.Panelists)
	if err != nil {
		return Schedule{}, err
	}

	sched := Schedule{
		GroupID:     groupID,
		Stage:       stage,
		StartsAt:    ns.StartsAt.UTC(),
		Venue:       core.CleanString(ns.Venue),
		Panelists:   panel,
		PanelLocked: locked,
		CreatedAt:   time.Now().UTC(),
	}

	if err := svc.checkConflicts(ctx, sched); err != nil {
		return Schedule{}, err
	}

	sched, err = svc.repo.CreateSchedule(ctx, sched)
	if err != nil {
		return Schedule{}, errors.Wrap(err, "creating schedule")
	}

	svc.sendPanelNotices(ctx, grp.Name, sched)
	return sched, nil
}

// resolvePanel picks the panel for a new schedule. Title takes the
// requested panelists; later stages inherit Title's panel (locked) or
// the program default when Title was never scheduled.
func (svc *service) resolvePanel(ctx context.Context, program, groupID string, stage Stage, requested []string) ([]string, bool, error) {
	if stage == StageTitle {
		if len(requested) > 0 {
			return cleanNames(requested), false, nil
		}
		panel, err := svc.repo.GetDefaultPanel(ctx, program)
		if err != nil {
			return nil, false, errors.Wrap(err, "fetching default panel")
		}
		return panel, false, nil
	}

	title, err := svc.repo.GetGroupSchedule(ctx, groupID, StageTitle)
	if err != nil {
		return nil, false, errors.Wrap(err, "fetching title schedule")
	}
	if title != nil {
		return title.Panelists, true, nil
	}
	panel, err := svc.repo.GetDefaultPanel(ctx, program)
	if err != nil {
		return nil, false, errors.Wrap(err, "fetching default panel")
	}
	return panel, false, nil
}

// checkConflicts rejects the schedule if another defense on the same
// day shares a panelist and starts within the conflict window.
func (svc *service) checkConflicts(ctx context.Context, sched Schedule) error {
	sameDay, err := svc.repo.QuerySchedulesOn(ctx, sched.StartsAt)
	if err != nil {
		return errors.Wrap(err, "querying schedules for conflict check")
	}
	for _, other := range sameDay {
		if other.GroupID == sched.GroupID && other.Stage == sched.Stage {
			continue
		}
		gap := sched.StartsAt.Sub(other.StartsAt)
		if gap < 0 {
			gap = -gap
		}
		if gap >= conflictWindow {
			continue
		}
		overlap := overlappingPanelists(sched.Panelists, other.Panelists)
		if len(overlap) == 0 {
			continue
		}
		var name string
		if grp, gerr := svc.groups.GetGroupByID(ctx, other.GroupID); gerr == nil {
			name = grp.Name
		}
		return &ConflictError{
			GroupID:   other.GroupID,
			GroupName: name,
			StartsAt:  other.StartsAt,
			Panelists: overlap,
		}
	}
	return nil
}

func overlappingPanelists(a, b []string) []string {
	keys := make(map[string]bool, len(a))
	for _, p := range a {
		keys[core.NormalizeKey(p)] = true
	}
	var overlap []string
	for _, p := range b {
		if keys[core.NormalizeKey(p)] {
			overlap = append(overlap, p)
		}
	}
	return overlap
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = core.CleanString(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// sendPanelNotices emails the panel about the new schedule; lookups
// and delivery are best-effort and never fail the write.
func (svc *service) sendPanelNotices(ctx context.Context, groupName string, sched Schedule) {
	if svc.mailSvc == nil || svc.panel == nil {
		return
	}
	recipients := svc.panel.LookupEmails(ctx, sched.Panelists)
	if len(recipients) == 0 {
		return
	}
	to := make([]mail.Address, 0, len(recipients))
	for _, r := range recipients {
		to = append(to, mail.Address{Name: r.Name, Address: r.Address})
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("%s defense scheduled: %s", sched.Stage, groupName),
		Body: fmt.Sprintf(
			"You are assigned to the %s defense of %q on %s at %s.",
			sched.Stage, groupName, sched.StartsAt.Format("Mon, 02 Jan 2006 15:04"), sched.Venue),
	})
}
