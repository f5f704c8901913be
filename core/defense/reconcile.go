package defense

import (
	"github.com/capdesk/capdesk/core"
)

// Reconcile merges the three feedback sources into one per-slot view.
//
// Source precedence is fixed: legacy wide records are the base layer,
// feedback entries overlay them, and annotation records overlay URLs
// last. Precedence is a documented rule, not derived from timestamps;
// legacy rows predate the newer tables and carry no reliable timestamp.
//
// The merge is idempotent and commutative across panelists (each
// panelist owns a disjoint key); it is NOT commutative across sources.
// Slot and panelist keys are normalized before comparison, so spelling
// variants from different writers land on the same cell. The returned
// view is keyed by normalized slot; panelist map keys keep the display
// spelling of the most authoritative source that wrote the cell.
func Reconcile(legacy *LegacyStageStatus, entries []FeedbackEntry, annotations []FileAnnotation) FeedbackView {
	m := newMerger()

	// 1. base layer: legacy wide record
	if legacy != nil {
		for slot, byPanelist := range legacy.StatusBySlot {
			for panelist, status := range byPanelist {
				if st, err := ParseStatus(status); err == nil && st != "" {
					m.setStatus(slot, panelist, st)
				}
			}
		}
		for slot, byPanelist := range legacy.RemarksBySlot {
			for panelist, remarks := range byPanelist {
				if remarks != "" {
					m.setRemarks(slot, panelist, remarks)
				}
			}
		}
	}

	// 2. overlay: feedback entries win over the base for the same cell
	for _, e := range entries {
		if e.Status != "" {
			m.setStatus(e.FileSlot, e.Panelist, e.Status)
		}
		if e.Remarks != "" {
			m.setRemarks(e.FileSlot, e.Panelist, e.Remarks)
		}
		if e.AnnotatedURL != "" {
			m.setAnnotation(e.FileSlot, e.Panelist, e.AnnotatedURL)
		}
	}

	// 3. overlay: annotation records are authoritative for URLs
	for _, a := range annotations {
		if a.URL != "" {
			m.setAnnotation(a.FileSlot, a.Panelist, a.URL)
		}
	}

	return m.view()
}

// merger accumulates cells keyed by normalized (slot, panelist) while
// remembering the latest display spelling of each panelist per slot.
type merger struct {
	slots map[string]*slotAcc
}

type slotAcc struct {
	display     map[string]string // normalized panelist -> display name
	statuses    map[string]Status // normalized panelist -> status
	remarks     map[string]string
	annotations map[string]string
}

func newMerger() *merger {
	return &merger{slots: make(map[string]*slotAcc)}
}

func (m *merger) slot(name string) *slotAcc {
	key := core.NormalizeKey(name)
	acc, ok := m.slots[key]
	if !ok {
		acc = &slotAcc{
			display:     make(map[string]string),
			statuses:    make(map[string]Status),
			remarks:     make(map[string]string),
			annotations: make(map[string]string),
		}
		m.slots[key] = acc
	}
	return acc
}

func (acc *slotAcc) panelist(name string) string {
	key := core.NormalizeKey(name)
	acc.display[key] = core.CleanString(name) // newest writer's spelling wins
	return key
}

func (m *merger) setStatus(slot, panelist string, st Status) {
	acc := m.slot(slot)
	acc.statuses[acc.panelist(panelist)] = st
}

func (m *merger) setRemarks(slot, panelist, remarks string) {
	acc := m.slot(slot)
	acc.remarks[acc.panelist(panelist)] = remarks
}

func (m *merger) setAnnotation(slot, panelist, url string) {
	acc := m.slot(slot)
	acc.annotations[acc.panelist(panelist)] = url
}

func (m *merger) view() FeedbackView {
	view := make(FeedbackView, len(m.slots))
	for slotKey, acc := range m.slots {
		fv := newFileView()
		for pk, st := range acc.statuses {
			fv.StatusByPanelist[acc.display[pk]] = st
		}
		for pk, r := range acc.remarks {
			fv.RemarksByPanelist[acc.display[pk]] = r
		}
		for pk, url := range acc.annotations {
			fv.AnnotationByPanelist[acc.display[pk]] = url
		}
		view[slotKey] = fv
	}
	return view
}
