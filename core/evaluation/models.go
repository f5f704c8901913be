package evaluation

import (
	"sort"
	"strings"
	"time"

	"github.com/capdesk/capdesk/core/defense"
)

// Rubric bounds. Every criterion is scored on the same 1..4 scale.
const (
	MinScore = 1
	MaxScore = 4
)

// IndividualCriteria is the per-student rubric (max total 28).
var IndividualCriteria = []string{
	"mastery_of_the_subject",
	"delivery_and_communication",
	"ability_to_answer_questions",
	"confidence_and_composure",
	"quality_of_visual_aids",
	"contribution_to_the_project",
	"time_management",
}

// SystemCriteria is the per-group system rubric (max total 32).
var SystemCriteria = []string{
	"problem_definition",
	"objectives",
	"scope_and_limitation",
	"methodology",
	"system_design",
	"functionality",
	"usability",
	"documentation",
}

// IndividualScore is one panelist's rubric for one student at one
// defense. Append-only: once written it is never updated.
type IndividualScore struct {
	ID         string         `json:"id"`
	ScheduleID string         `json:"schedule_id"`
	GroupID    string         `json:"group_id"`
	Stage      defense.Stage  `json:"stage"`
	StudentID  string         `json:"student_id"`
	Panelist   string         `json:"panelist"`
	Scores     map[string]int `json:"scores"`
	Total      int            `json:"total"`
	CreatedAt  time.Time      `json:"created_at"` // UTC
}

// SystemScore is one panelist's rubric for the group's system at one
// defense. Append-only.
type SystemScore struct {
	ID         string         `json:"id"`
	ScheduleID string         `json:"schedule_id"`
	GroupID    string         `json:"group_id"`
	Stage      defense.Stage  `json:"stage"`
	Panelist   string         `json:"panelist"`
	Scores     map[string]int `json:"scores"`
	Total      int            `json:"total"`
	CreatedAt  time.Time      `json:"created_at"` // UTC
}

// GradeRecord is an instructor-entered numeric grade per (student, stage),
// independent of panelist evaluation. A nil grade clears the record.
type GradeRecord struct {
	StudentID string        `json:"student_id"`
	Stage     defense.Stage `json:"stage"`
	Grade     *float64      `json:"grade"`
	EnteredBy string        `json:"entered_by"`
	UpdatedAt time.Time     `json:"updated_at"` // UTC
}

// NewIndividualScore is the expected payload for an individual rubric.
type NewIndividualScore struct {
	ScheduleID string         `json:"schedule_id"`
	StudentID  string         `json:"student_id" validate:"required"`
	Panelist   string         `json:"panelist"`
	Scores     map[string]int `json:"scores"`
}

// NewSystemScore is the expected payload for a system rubric.
type NewSystemScore struct {
	ScheduleID string         `json:"schedule_id"`
	Panelist   string         `json:"panelist"`
	Scores     map[string]int `json:"scores"`
}

// BatchError aggregates per-key failures of a bulk write so that no
// partial success goes unreported.
type BatchError struct {
	Errors map[string]error // failed key -> cause
}

func (err BatchError) Error() string {
	keys := make([]string, 0, len(err.Errors))
	for k := range err.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "writes failed for: " + strings.Join(keys, ", ")
}

func sumScores(scores map[string]int) int {
	var total int
	for _, v := range scores {
		total += v
	}
	return total
}
