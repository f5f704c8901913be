package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/defense"
)

type defenseRepository struct {
	db *defenseTable
}

var _ defense.Repository = (*defenseRepository)(nil) // interface compliance check

func NewDefenseRepository(db *DB) *defenseRepository {
	return &defenseRepository{db: db.defense}
}

func (repo *defenseRepository) GetLegacyStageStatus(_ context.Context, groupID string, stage defense.Stage) (*defense.LegacyStageStatus, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if st, ok := repo.db.legacy[stageKey(groupID, stage)]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, nil
}

// SetLegacyStageStatus seeds a legacy record; test fixtures only.
func (repo *defenseRepository) SetLegacyStageStatus(st defense.LegacyStageStatus) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.legacy[stageKey(st.GroupID, st.Stage)] = &st
}

func (repo *defenseRepository) QueryFeedbackEntries(_ context.Context, groupID string, stage defense.Stage) ([]defense.FeedbackEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var entries []defense.FeedbackEntry
	for _, e := range repo.db.feedback {
		if e.GroupID == groupID && e.Stage == stage {
			entries = append(entries, *e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FileSlot != entries[j].FileSlot {
			return entries[i].FileSlot < entries[j].FileSlot
		}
		return entries[i].Panelist < entries[j].Panelist
	})
	return entries, nil
}

func (repo *defenseRepository) GetFeedbackEntry(_ context.Context, groupID string, stage defense.Stage, slot, panelist string) (*defense.FeedbackEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.feedback[panelistKey(groupID, stage, slot, panelist)]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (repo *defenseRepository) UpsertFeedbackEntry(_ context.Context, e defense.FeedbackEntry) (defense.FeedbackEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := panelistKey(e.GroupID, e.Stage, e.FileSlot, core.NormalizeKey(e.Panelist))
	repo.db.feedback[key] = &e
	return e, nil
}

func (repo *defenseRepository) QueryFileAnnotations(_ context.Context, groupID string, stage defense.Stage) ([]defense.FileAnnotation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var annotations []defense.FileAnnotation
	for _, a := range repo.db.annotations {
		if a.GroupID == groupID && a.Stage == stage {
			annotations = append(annotations, *a)
		}
	}
	sort.Slice(annotations, func(i, j int) bool {
		if annotations[i].FileSlot != annotations[j].FileSlot {
			return annotations[i].FileSlot < annotations[j].FileSlot
		}
		return annotations[i].Panelist < annotations[j].Panelist
	})
	return annotations, nil
}

func (repo *defenseRepository) UpsertFileAnnotation(_ context.Context, a defense.FileAnnotation) (defense.FileAnnotation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := panelistKey(a.GroupID, a.Stage, core.NormalizeKey(a.FileSlot), core.NormalizeKey(a.Panelist))
	repo.db.annotations[key] = &a
	return a, nil
}

func (repo *defenseRepository) GetSubmission(_ context.Context, groupID string, stage defense.Stage, slot string) (*defense.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.submissions[slotKey(groupID, stage, slot)]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (repo *defenseRepository) QuerySubmissions(_ context.Context, groupID string, stage defense.Stage) ([]defense.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var subs []defense.Submission
	for _, s := range repo.db.submissions {
		if s.GroupID == groupID && s.Stage == stage {
			subs = append(subs, *s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].FileSlot < subs[j].FileSlot })
	return subs, nil
}

func (repo *defenseRepository) UpsertSubmission(_ context.Context, s defense.Submission) (defense.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.submissions[slotKey(s.GroupID, s.Stage, s.FileSlot)] = &s
	return s, nil
}

func (repo *defenseRepository) CreateSchedule(_ context.Context, s defense.Schedule) (defense.Schedule, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.schedules {
		if existing.GroupID == s.GroupID && existing.Stage == s.Stage {
			return defense.Schedule{}, defense.NewGateDeniedError("%s defense already scheduled", s.Stage)
		}
	}
	s.ID = uuid.New().String()
	repo.db.schedules[s.ID] = &s
	return s, nil
}

func (repo *defenseRepository) GetScheduleByID(_ context.Context, id string) (*defense.Schedule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.schedules[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (repo *defenseRepository) GetGroupSchedule(_ context.Context, groupID string, stage defense.Stage) (*defense.Schedule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.schedules {
		if s.GroupID == groupID && s.Stage == stage {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (repo *defenseRepository) QuerySchedulesOn(_ context.Context, day time.Time) ([]defense.Schedule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var schedules []defense.Schedule
	for _, s := range repo.db.schedules {
		if !s.StartsAt.Before(dayStart) && s.StartsAt.Before(dayEnd) {
			schedules = append(schedules, *s)
		}
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].StartsAt.Before(schedules[j].StartsAt) })
	return schedules, nil
}

func (repo *defenseRepository) GetDefaultPanel(_ context.Context, program string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.defaultPanels[program], nil
}

func (repo *defenseRepository) SetDefaultPanel(_ context.Context, program string, panelists []string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.defaultPanels[program] = panelists
	return nil
}
