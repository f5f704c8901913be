package dummydb

import (
	"fmt"
	"sync"

	"github.com/capdesk/capdesk/core/defense"
	"github.com/capdesk/capdesk/core/evaluation"
	"github.com/capdesk/capdesk/core/group"
	"github.com/capdesk/capdesk/core/user"
)

type (
	DB struct {
		user       *userTable
		group      *groupTable
		defense    *defenseTable
		evaluation *evaluationTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	groupTable struct {
		sync.RWMutex
		table map[string]*group.Group
	}

	defenseTable struct {
		sync.RWMutex
		legacy        map[string]*defense.LegacyStageStatus // group|stage
		feedback      map[string]*defense.FeedbackEntry     // group|stage|slot|panelist
		annotations   map[string]*defense.FileAnnotation    // group|stage|slot|panelist
		submissions   map[string]*defense.Submission        // group|stage|slot
		schedules     map[string]*defense.Schedule          // by id
		defaultPanels map[string][]string                   // by program
	}

	evaluationTable struct {
		sync.RWMutex
		individual []evaluation.IndividualScore
		system     []evaluation.SystemScore
		grades     map[string]*evaluation.GradeRecord // student|stage
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:  &userTable{table: make(map[string]*user.User)},
		group: &groupTable{table: make(map[string]*group.Group)},
		defense: &defenseTable{
			legacy:        make(map[string]*defense.LegacyStageStatus),
			feedback:      make(map[string]*defense.FeedbackEntry),
			annotations:   make(map[string]*defense.FileAnnotation),
			submissions:   make(map[string]*defense.Submission),
			schedules:     make(map[string]*defense.Schedule),
			defaultPanels: make(map[string][]string),
		},
		evaluation: &evaluationTable{grades: make(map[string]*evaluation.GradeRecord)},
	}
	return db, nil
}

func stageKey(groupID string, stage defense.Stage) string {
	return fmt.Sprintf("%s|%d", groupID, stage)
}

func slotKey(groupID string, stage defense.Stage, slot string) string {
	return fmt.Sprintf("%s|%d|%s", groupID, stage, slot)
}

func panelistKey(groupID string, stage defense.Stage, slot, panelist string) string {
	return fmt.Sprintf("%s|%d|%s|%s", groupID, stage, slot, panelist)
}
