package group

import (
	"strings"
	"time"
)

// Group is a capstone project group. Identity is immutable once created;
// metadata and membership may change. Groups are archived, never deleted.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Program   string    `json:"program"`
	Section   string    `json:"section"`
	Adviser   string    `json:"adviser"`
	Members   []Member  `json:"members"` // ordered
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Member is a student belonging to a group.
type Member struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
}

// StudentIDs returns the ordered member student ids.
func (g Group) StudentIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.StudentID)
	}
	return ids
}

// NewGroup is the expected payload to create a new Group.
type NewGroup struct {
	Name    string   `json:"name" validate:"required"`
	Program string   `json:"program" validate:"required"`
	Section string   `json:"section" validate:"required"`
	Adviser string   `json:"adviser"`
	Members []Member `json:"members" validate:"required,min=1,dive"`
}

func (ng *NewGroup) Clean() {
	ng.Name = strings.TrimSpace(ng.Name)
	ng.Program = strings.TrimSpace(ng.Program)
	ng.Section = strings.TrimSpace(ng.Section)
	ng.Adviser = strings.TrimSpace(ng.Adviser)
}

// UpdateGroup is the expected payload to update a Group.
// A member entry with a blank student id removes that slot from the list.
type UpdateGroup struct {
	Name    string   `json:"name"`
	Program string   `json:"program"`
	Section string   `json:"section"`
	Adviser string   `json:"adviser"`
	Members []Member `json:"members"`
}

// QueryFilter applies an AND operation on its non-zero fields.
// Search does a case-insensitive match on Group.Name or Group.Adviser.
type QueryFilter struct {
	Search          string `json:"search" query:"search"`
	Program         string `json:"program" query:"program"`
	Section         string `json:"section" query:"section"`
	IncludeArchived bool   `json:"include_archived" query:"include_archived"`
}
