package scheduler

import "arriendo/internal/models"

type tentativeState int

const (
	tentativePending tentativeState = iota
	tentativeApplied
	tentativeCommitted
	tentativeReverted
)

// tentativeUpdate marks a slot reserved ahead of the server answer and can be
// committed or reverted exactly once.
type tentativeUpdate struct {
	slotID string
	to     models.SlotStatus
	prev   models.SlotStatus
	found  bool
	state  tentativeState
}

func newTentativeUpdate(slotID string, to models.SlotStatus) *tentativeUpdate {
	return &tentativeUpdate{slotID: slotID, to: to}
}

// Apply mutates slots and the availability snapshot in place.
func (t *tentativeUpdate) Apply(slots []models.Slot, data *models.AvailabilityResponse) {
	if t.state != tentativePending {
		return
	}
	t.state = tentativeApplied
	t.found = setStatus(slots, t.slotID, t.to, &t.prev)
	if data != nil {
		setStatus(data.Slots, t.slotID, t.to, nil)
	}
}

func (t *tentativeUpdate) Commit() {
	if t.state == tentativeApplied {
		t.state = tentativeCommitted
	}
}

// Revert restores the previous status; no-op unless applied.
func (t *tentativeUpdate) Revert(slots []models.Slot, data *models.AvailabilityResponse) {
	if t.state != tentativeApplied {
		return
	}
	t.state = tentativeReverted
	if !t.found {
		return
	}
	setStatus(slots, t.slotID, t.prev, nil)
	if data != nil {
		setStatus(data.Slots, t.slotID, t.prev, nil)
	}
}

func setStatus(slots []models.Slot, id string, status models.SlotStatus, prev *models.SlotStatus) bool {
	for i := range slots {
		if slots[i].ID != id {
			continue
		}
		if prev != nil {
			*prev = slots[i].Status
		}
		slots[i].Status = status
		return true
	}
	return false
}
