package defense

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core"
	"github.com/capdesk/capdesk/core/group"
)

type (
	// Repository is the record store the engines run over. The engines
	// themselves own no persistent state; every call re-derives its
	// answer from these records. Missing records come back nil, not as
	// errors.
	Repository interface {
		GetLegacyStageStatus(ctx context.Context, groupID string, stage Stage) (*LegacyStageStatus, error)

		QueryFeedbackEntries(ctx context.Context, groupID string, stage Stage) ([]FeedbackEntry, error)
		// GetFeedbackEntry looks up by normalized slot and panelist keys.
		GetFeedbackEntry(ctx context.Context, groupID string, stage Stage, slotKey, panelistKey string) (*FeedbackEntry, error)
		// UpsertFeedbackEntry replaces the record at the entry's full
		// composite key (group, stage, slot, panelist).
		UpsertFeedbackEntry(ctx context.Context, e FeedbackEntry) (FeedbackEntry, error)

		QueryFileAnnotations(ctx context.Context, groupID string, stage Stage) ([]FileAnnotation, error)
		UpsertFileAnnotation(ctx context.Context, a FileAnnotation) (FileAnnotation, error)

		GetSubmission(ctx context.Context, groupID string, stage Stage, slotKey string) (*Submission, error)
		QuerySubmissions(ctx context.Context, groupID string, stage Stage) ([]Submission, error)
		UpsertSubmission(ctx context.Context, s Submission) (Submission, error)

		CreateSchedule(ctx context.Context, s Schedule) (Schedule, error)
		GetScheduleByID(ctx context.Context, id string) (*Schedule, error)
		GetGroupSchedule(ctx context.Context, groupID string, stage Stage) (*Schedule, error)
		// QuerySchedulesOn returns every schedule on the given calendar day.
		QuerySchedulesOn(ctx context.Context, day time.Time) ([]Schedule, error)

		GetDefaultPanel(ctx context.Context, program string) ([]string, error)
	}

	// PanelDirectory resolves panelist names to email addresses for
	// schedule notices. Lookups are best-effort.
	PanelDirectory interface {
		LookupEmails(ctx context.Context, names []string) []EmailRecipient
	}

	EmailRecipient struct {
		Name    string
		Address string
	}

	Service interface {
		BuildFeedbackView(ctx context.Context, groupID string, stage Stage) (FeedbackView, error)
		PutFeedback(ctx context.Context, pf PutFeedback) (FeedbackEntry, error)
		PutSubmission(ctx context.Context, ps PutSubmission) (Submission, error)
		CanRevise(ctx context.Context, groupID string, stage Stage, slot string) (bool, error)
		GateStatus(ctx context.Context, actor, groupID string) (GateStatus, error)
		CreateSchedule(ctx context.Context, groupID string, stage Stage, ns NewSchedule) (Schedule, error)
		GroupVerdicts(ctx context.Context, groupID string) (GroupVerdicts, error)
		Dashboard(ctx context.Context, groups []group.Group) (DashboardCounts, error)
	}

	service struct {
		repo    Repository
		groups  group.Repository
		gate    *Gate
		panel   PanelDirectory
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	groups group.Repository,
	gate *Gate,
	panel PanelDirectory,
	mailSvc core.EmailService,
	conf *core.Config,
) Service {
	return &service{
		repo:    repo,
		groups:  groups,
		gate:    gate,
		panel:   panel,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

// BuildFeedbackView reads all three sources and reconciles them.
// Absent sources degrade to empty sets: partial data is always
// preferred over a failed read path.
func (svc *service) BuildFeedbackView(ctx context.Context, groupID string, stage Stage) (FeedbackView, error) {
	legacy, err := svc.repo.GetLegacyStageStatus(ctx, groupID, stage)
	if err != nil {
		return nil, errors.Wrap(err, "reading legacy stage status")
	}
	entries, err := svc.repo.QueryFeedbackEntries(ctx, groupID, stage)
	if err != nil {
		return nil, errors.Wrap(err, "reading feedback entries")
	}
	annotations, err := svc.repo.QueryFileAnnotations(ctx, groupID, stage)
	if err != nil {
		return nil, errors.Wrap(err, "reading file annotations")
	}
	return Reconcile(legacy, entries, annotations), nil
}

// PutFeedback is the partial, merge-on-write feedback upsert. Only the
// fields present in pf change; the current row is fetched immediately
// before the upsert so concurrent writes to other fields of other keys
// are never clobbered.
type PutFeedback struct {
	GroupID      string
	Stage        Stage
	FileSlot     string
	Panelist     string
	Status       *string
	Remarks      *string
	AnnotatedURL *string
}

func (svc *service) PutFeedback(ctx context.Context, pf PutFeedback) (FeedbackEntry, error) {
	var status Status
	if pf.Status != nil {
		st, err := ParseStatus(*pf.Status)
		if err != nil {
			return FeedbackEntry{}, core.NewValidationError(err,
				core.FieldError{Field: "status", Error: err.Error()})
		}
		if st != "" && !StatusAllowed(pf.Stage, st) {
			return FeedbackEntry{}, core.NewValidationError(nil, core.FieldError{
				Field: "status",
				Error: "status " + string(st) + " is not allowed at the " + pf.Stage.String() + " stage",
			})
		}
		status = st
	}

	slotKey := normalizeSlot(pf.FileSlot)
	panelistKey := core.NormalizeKey(pf.Panelist)
	if slotKey == "" || panelistKey == "" {
		return FeedbackEntry{}, core.NewValidationError(errors.New("file slot and panelist are required"))
	}

	// read-merge-upsert scoped to this key only
	current, err := svc.repo.GetFeedbackEntry(ctx, pf.GroupID, pf.Stage, slotKey, panelistKey)
	if err != nil {
		return FeedbackEntry{}, errors.Wrap(err, "fetching current feedback entry")
	}
	entry := FeedbackEntry{
		GroupID:  pf.GroupID,
		Stage:    pf.Stage,
		FileSlot: slotKey,
		Panelist: core.CleanString(pf.Panelist),
	}
	if current != nil {
		entry.Status = current.Status
		entry.Remarks = current.Remarks
		entry.AnnotatedURL = current.AnnotatedURL
	}
	if pf.Status != nil {
		entry.Status = status
	}
	if pf.Remarks != nil {
		entry.Remarks = core.CleanString(*pf.Remarks)
	}
	if pf.AnnotatedURL != nil {
		entry.AnnotatedURL = core.CleanString(*pf.AnnotatedURL)
	}
	entry.UpdatedAt = time.Now().UTC()

	return svc.repo.UpsertFeedbackEntry(ctx, entry)
}

// PutSubmission records a slot's document URL. Originals lock once
// set; revisions only open past the feedback threshold.
type PutSubmission struct {
	GroupID  string
	Stage    Stage
	FileSlot string
	URL      string
	Revised  bool
}

func (svc *service) PutSubmission(ctx context.Context, ps PutSubmission) (Submission, error) {
	slotKey := normalizeSlot(ps.FileSlot)
	if slotKey == "" {
		return Submission{}, core.NewValidationError(errors.New("file slot is required"))
	}

	current, err := svc.repo.GetSubmission(ctx, ps.GroupID, ps.Stage, slotKey)
	if err != nil {
		return Submission{}, errors.Wrap(err, "fetching current submission")
	}

	sub := Submission{GroupID: ps.GroupID, Stage: ps.Stage, FileSlot: slotKey}
	if current != nil {
		sub = *current
	}

	if ps.Revised {
		ok, err := svc.CanRevise(ctx, ps.GroupID, ps.Stage, slotKey)
		if err != nil {
			return Submission{}, err
		}
		if !ok {
			return Submission{}, NewGateDeniedError(
				"revision for %s locked: fewer than %d panelists have reviewed it", slotKey, reviseThreshold)
		}
		sub.RevisedURL = core.CleanString(ps.URL)
	} else {
		if current != nil && current.OriginalURL != "" {
			return Submission{}, NewGateDeniedError("original document for %s is locked", slotKey)
		}
		sub.OriginalURL = core.CleanString(ps.URL)
	}
	sub.UpdatedAt = time.Now().UTC()

	return svc.repo.UpsertSubmission(ctx, sub)
}

func (svc *service) CanRevise(ctx context.Context, groupID string, stage Stage, slot string) (bool, error) {
	view, err := svc.BuildFeedbackView(ctx, groupID, stage)
	if err != nil {
		return false, err
	}
	return CanRevise(view, slot), nil
}

func (svc *service) GateStatus(ctx context.Context, actor, groupID string) (GateStatus, error) {
	return svc.gate.Status(ctx, actor, groupID)
}

func (svc *service) GroupVerdicts(ctx context.Context, groupID string) (GroupVerdicts, error) {
	var gv GroupVerdicts
	for _, stage := range Stages {
		view, err := svc.BuildFeedbackView(ctx, groupID, stage)
		if err != nil {
			return GroupVerdicts{}, err
		}
		verdict := StageVerdict(view)
		switch stage {
		case StageTitle:
			gv.Title = verdict
		case StagePreOral:
			gv.PreOral = verdict
		case StageFinal:
			gv.Final = verdict
		}
	}
	return gv, nil
}

func (svc *service) Dashboard(ctx context.Context, groups []group.Group) (DashboardCounts, error) {
	verdicts := make([]GroupVerdicts, 0, len(groups))
	for _, grp := range groups {
		gv, err := svc.GroupVerdicts(ctx, grp.ID)
		if err != nil {
			return DashboardCounts{}, errors.Wrapf(err, "rolling up group %s", grp.ID)
		}
		verdicts = append(verdicts, gv)
	}
	return CountDashboard(verdicts), nil
}
