package defense

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core"
)

// Stage is one of the three ordered defense stages.
type Stage int

const (
	StageTitle Stage = iota + 1
	StagePreOral
	StageFinal
)

// Stages in defense order.
var Stages = []Stage{StageTitle, StagePreOral, StageFinal}

var ErrUnknownStage = errors.New("unknown stage")

func (s Stage) String() string {
	switch s {
	case StageTitle:
		return "Title"
	case StagePreOral:
		return "Pre-Oral"
	case StageFinal:
		return "Final"
	}
	return "Unknown"
}

// Key is the canonical normalized form written back to the store.
func (s Stage) Key() string {
	switch s {
	case StageTitle:
		return "title"
	case StagePreOral:
		return "preoral"
	case StageFinal:
		return "final"
	}
	return ""
}

// Prev returns the preceding stage; ok is false for Title.
func (s Stage) Prev() (Stage, bool) {
	if s <= StageTitle || s > StageFinal {
		return 0, false
	}
	return s - 1, true
}

// ParseStage resolves free-form stage names ("Pre-Oral Defense",
// "pre oral defense", "preoral") to a Stage.
func ParseStage(name string) (Stage, error) {
	key := core.NormalizeKey(name)
	// a trailing "defense" is noise: "Title Defense" == "Title"
	if len(key) > len("defense") && key[len(key)-len("defense"):] == "defense" {
		key = key[:len(key)-len("defense")]
	}
	for _, s := range Stages {
		if key == s.Key() {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownStage, "%q", name)
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	stage, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = stage
	return nil
}

// Status is a panelist's per-file review status.
type Status string

const (
	StatusPending               Status = "Pending"
	StatusApproved              Status = "Approved"
	StatusApprovedWithRevisions Status = "Approved with Revisions"
	StatusRejected              Status = "Rejected"
	StatusRedefend              Status = "Redefend"
	StatusCompleted             Status = "Completed"
)

var allStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusApprovedWithRevisions,
	StatusRejected,
	StatusRedefend,
	StatusCompleted,
}

var ErrUnknownStatus = errors.New("unknown status")

// ParseStatus resolves free-form status spellings ("approved-with-revisions",
// "Approved With Revisions") to a canonical Status. Empty input parses to "".
func ParseStatus(name string) (Status, error) {
	if name == "" {
		return "", nil
	}
	key := core.NormalizeKey(name)
	for _, st := range allStatuses {
		if key == core.NormalizeKey(string(st)) {
			return st, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownStatus, "%q", name)
}

// AllowedStatuses returns the statuses a panelist may record at a stage.
// Pending is always allowed as the neutral reset value.
func AllowedStatuses(stage Stage) []Status {
	switch stage {
	case StageTitle:
		return []Status{StatusPending, StatusRejected, StatusRedefend, StatusApprovedWithRevisions, StatusApproved}
	case StagePreOral:
		return []Status{StatusPending, StatusRedefend, StatusApprovedWithRevisions, StatusApproved}
	case StageFinal:
		return []Status{StatusPending, StatusRedefend, StatusApprovedWithRevisions, StatusCompleted}
	}
	return nil
}

// StatusAllowed reports whether st may be recorded at stage.
func StatusAllowed(stage Stage, st Status) bool {
	for _, allowed := range AllowedStatuses(stage) {
		if st == allowed {
			return true
		}
	}
	return false
}

// Verdict is the aggregated approval outcome for a file or stage.
type Verdict string

const (
	VerdictPending               Verdict = "Pending"
	VerdictApproved              Verdict = "Approved"
	VerdictApprovedWithRevisions Verdict = "Approved with Revisions"
	VerdictRejected              Verdict = "Rejected"
)

// FeedbackEntry is one panelist's review of one file slot.
// At most one entry exists per (group, stage, slot, panelist) key;
// writes are idempotent replacements of the full tuple.
type FeedbackEntry struct {
	GroupID      string    `json:"group_id"`
	Stage        Stage     `json:"stage"`
	FileSlot     string    `json:"file_slot"`
	Panelist     string    `json:"panelist"`
	Status       Status    `json:"status"`
	Remarks      string    `json:"remarks"`
	AnnotatedURL string    `json:"annotated_url"`
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// FileAnnotation is an annotation-only record; authoritative for URLs
// over FeedbackEntry.AnnotatedURL.
type FileAnnotation struct {
	GroupID   string    `json:"group_id"`
	Stage     Stage     `json:"stage"`
	FileSlot  string    `json:"file_slot"`
	Panelist  string    `json:"panelist"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// LegacyStageStatus is the deprecated wide record holding per-slot,
// per-panelist statuses and remarks for a (group, stage) pair.
// It is read-only for merge purposes: data still living here must
// never be silently dropped.
type LegacyStageStatus struct {
	GroupID       string
	Stage         Stage
	StatusBySlot  map[string]map[string]string // slot -> panelist -> status
	RemarksBySlot map[string]map[string]string // slot -> panelist -> remarks
}

// ParseLegacyMaps decodes a legacy wide-JSON column. Malformed JSON is
// treated as empty, never as an error: historical rows predate any schema.
func ParseLegacyMaps(raw []byte) map[string]map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// FileView is the reconciled per-file review state across all panelists.
// Map keys are panelist display names.
type FileView struct {
	StatusByPanelist     map[string]Status `json:"status_by_panelist"`
	RemarksByPanelist    map[string]string `json:"remarks_by_panelist"`
	AnnotationByPanelist map[string]string `json:"annotation_by_panelist"`
}

func newFileView() *FileView {
	return &FileView{
		StatusByPanelist:     make(map[string]Status),
		RemarksByPanelist:    make(map[string]string),
		AnnotationByPanelist: make(map[string]string),
	}
}

// FeedbackView maps normalized file-slot keys to their reconciled views.
type FeedbackView map[string]*FileView

func normalizeSlot(slot string) string { return core.NormalizeKey(slot) }

// Submission holds a slot's original and optional revised document URLs.
// "No submission" is the empty string.
type Submission struct {
	GroupID     string    `json:"group_id"`
	Stage       Stage     `json:"stage"`
	FileSlot    string    `json:"file_slot"`
	OriginalURL string    `json:"original_url"`
	RevisedURL  string    `json:"revised_url"`
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Schedule is a group's defense appointment for one stage.
type Schedule struct {
	ID          string    `json:"id"`
	GroupID     string    `json:"group_id"`
	Stage       Stage     `json:"stage"`
	StartsAt    time.Time `json:"starts_at"` // UTC
	Venue       string    `json:"venue"`
	Panelists   []string  `json:"panelists"`
	PanelLocked bool      `json:"panel_locked"` // panel inherited from Title; not editable
	CreatedAt   time.Time `json:"created_at"`   // UTC
}

// NewSchedule is the expected payload to schedule a defense.
type NewSchedule struct {
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	Venue     string    `json:"venue" validate:"required"`
	Panelists []string  `json:"panelists"`
}

// GateStatus summarises an actor's position in the sequential gate.
type GateStatus struct {
	TitleEvaluated   bool    `json:"title_evaluated"`
	PreOralEvaluated bool    `json:"preoral_evaluated"`
	FinalEvaluated   bool    `json:"final_evaluated"`
	CanAdvanceTo     []Stage `json:"can_advance_to"`
}

// GroupVerdicts is the per-stage rollup for one group.
type GroupVerdicts struct {
	Title   Verdict `json:"title"`
	PreOral Verdict `json:"preoral"`
	Final   Verdict `json:"final"`
}

// DashboardCounts is the deliberately lossy reporting summary: one
// file's verdict represents its whole stage.
type DashboardCounts struct {
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Completed int `json:"completed"`
}
