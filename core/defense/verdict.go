package defense

import "sort"

// FileVerdict derives the aggregated verdict for one file from all
// panelist statuses, by fixed precedence:
//
//	Approved/Completed > Approved with Revisions > Rejected/Redefend > Pending
//
// One approving panelist outweighs any number of rejections.
func FileVerdict(fv *FileView) Verdict {
	if fv == nil {
		return VerdictPending
	}
	verdict := VerdictPending
	for _, st := range fv.StatusByPanelist {
		switch st {
		case StatusApproved, StatusCompleted:
			return VerdictApproved
		case StatusApprovedWithRevisions:
			verdict = VerdictApprovedWithRevisions
		case StatusRejected, StatusRedefend:
			if verdict == VerdictPending {
				verdict = VerdictRejected
			}
		}
	}
	return verdict
}

// StageVerdict rolls a stage's slots up to a single label. One slot's
// verdict represents the whole stage: slots are walked in ascending
// key order and the highest-precedence verdict found is returned.
// This approximate semantic is kept deliberately for report parity.
func StageVerdict(view FeedbackView) Verdict {
	verdict := VerdictPending
	for _, slot := range sortedSlots(view) {
		switch FileVerdict(view[slot]) {
		case VerdictApproved:
			return VerdictApproved
		case VerdictApprovedWithRevisions:
			verdict = VerdictApprovedWithRevisions
		case VerdictRejected:
			if verdict == VerdictPending {
				verdict = VerdictRejected
			}
		}
	}
	return verdict
}

func sortedSlots(view FeedbackView) []string {
	slots := make([]string, 0, len(view))
	for slot := range view {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

// CountDashboard tallies stage verdicts across groups:
// approved/rejected by Title verdict, completed by Final verdict.
func CountDashboard(verdicts []GroupVerdicts) DashboardCounts {
	var counts DashboardCounts
	for _, v := range verdicts {
		switch v.Title {
		case VerdictApproved:
			counts.Approved++
		case VerdictRejected:
			counts.Rejected++
		}
		if v.Final == VerdictApproved {
			counts.Completed++
		}
	}
	return counts
}
