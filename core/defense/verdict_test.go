package defense

import "testing"

func TestFileVerdict(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[string]Status
		want     Verdict
	}{
		{name: "no statuses", statuses: nil, want: VerdictPending},
		{name: "all pending", statuses: map[string]Status{"P1": StatusPending}, want: VerdictPending},
		{name: "lone redefend", statuses: map[string]Status{"P1": StatusRedefend}, want: VerdictRejected},
		{name: "lone rejected", statuses: map[string]Status{"P1": StatusRejected}, want: VerdictRejected},
		{
			name:     "one approval outweighs a rejection",
			statuses: map[string]Status{"A": StatusRejected, "B": StatusApproved},
			want:     VerdictApproved,
		},
		{
			name:     "completed counts as approved",
			statuses: map[string]Status{"A": StatusCompleted, "B": StatusRedefend},
			want:     VerdictApproved,
		},
		{
			name:     "revisions beat rejection",
			statuses: map[string]Status{"A": StatusApprovedWithRevisions, "B": StatusRejected},
			want:     VerdictApprovedWithRevisions,
		},
		{
			name:     "approval beats revisions",
			statuses: map[string]Status{"A": StatusApprovedWithRevisions, "B": StatusApproved},
			want:     VerdictApproved,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := newFileView()
			fv.StatusByPanelist = tt.statuses
			if got := FileVerdict(fv); got != tt.want {
				t.Errorf("FileVerdict() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestFileVerdict_nilView(t *testing.T) {
	if got := FileVerdict(nil); got != VerdictPending {
		t.Errorf("FileVerdict(nil) = %q; want %q", got, VerdictPending)
	}
}

func TestStageVerdict(t *testing.T) {
	view := FeedbackView{
		"title1": {StatusByPanelist: map[string]Status{"P1": StatusRejected}},
		"title2": {StatusByPanelist: map[string]Status{"P1": StatusApproved}},
	}
	if got := StageVerdict(view); got != VerdictApproved {
		t.Errorf("StageVerdict() = %q; want %q: one approved slot labels the stage", got, VerdictApproved)
	}

	if got := StageVerdict(FeedbackView{}); got != VerdictPending {
		t.Errorf("StageVerdict(empty) = %q; want %q", got, VerdictPending)
	}
}

func TestCountDashboard(t *testing.T) {
	verdicts := []GroupVerdicts{
		{Title: VerdictApproved, PreOral: VerdictApproved, Final: VerdictApproved},
		{Title: VerdictApproved, PreOral: VerdictPending, Final: VerdictPending},
		{Title: VerdictRejected, PreOral: VerdictPending, Final: VerdictPending},
		{Title: VerdictApprovedWithRevisions, PreOral: VerdictPending, Final: VerdictPending},
	}

	counts := CountDashboard(verdicts)

	if counts.Approved != 2 {
		t.Errorf("Approved = %d; want 2", counts.Approved)
	}
	if counts.Rejected != 1 {
		t.Errorf("Rejected = %d; want 1", counts.Rejected)
	}
	if counts.Completed != 1 {
		t.Errorf("Completed = %d; want 1", counts.Completed)
	}
}
