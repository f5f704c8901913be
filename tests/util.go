package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/capdesk/capdesk/core/defense"
	"github.com/capdesk/capdesk/core/group"
	"github.com/capdesk/capdesk/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  &isActive,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateGroup(
	t *testing.T,
	repo group.Repository,
	name, program, section, adviser string,
	members ...group.Member,
) group.Group {
	t.Helper()

	now := time.Now().UTC()
	grp, err := repo.CreateGroup(context.Background(), group.Group{
		Name:      name,
		Program:   program,
		Section:   section,
		Adviser:   adviser,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return grp
}

func CreateSchedule(
	t *testing.T,
	repo defense.Repository,
	groupID string,
	stage defense.Stage,
	startsAt time.Time,
	panelists ...string,
) defense.Schedule {
	t.Helper()

	sched, err := repo.CreateSchedule(context.Background(), defense.Schedule{
		GroupID:   groupID,
		Stage:     stage,
		StartsAt:  startsAt.UTC(),
		Venue:     "AVR 1",
		Panelists: panelists,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSchedule() failed: %v", err)
	}
	return sched
}

func CreateFeedback(
	t *testing.T,
	repo defense.Repository,
	groupID string,
	stage defense.Stage,
	slot, panelist string,
	status defense.Status,
	remarks string,
) defense.FeedbackEntry {
	t.Helper()

	entry, err := repo.UpsertFeedbackEntry(context.Background(), defense.FeedbackEntry{
		GroupID:   groupID,
		Stage:     stage,
		FileSlot:  slot,
		Panelist:  panelist,
		Status:    status,
		Remarks:   remarks,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateFeedback() failed: %v", err)
	}
	return entry
}
