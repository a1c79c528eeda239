// Package dialog drives the multi-turn slot-filling conversation that
// collects the data needed to schedule an appointment.
package dialog

import (
	"context"
	"log/slog"

	"github.com/pedrovictor26/ofix-assistant/internal/extract"
	"github.com/pedrovictor26/ofix-assistant/internal/schedule"
	"github.com/pedrovictor26/ofix-assistant/internal/session"
)

// Slot identifies one required piece of scheduling data. A slot may be
// satisfied by more than one entity: a plate stands in for both the
// customer and the vehicle.
type Slot string

const (
	SlotCustomer Slot = "cliente"
	SlotVehicle  Slot = "veiculo"
	SlotDate     Slot = "data"
	SlotTime     Slot = "horario"
	SlotService  Slot = "servico"
)

// requiredSlots is the fixed slot set, in the order questions are asked.
var requiredSlots = []Slot{SlotService, SlotVehicle, SlotCustomer, SlotDate, SlotTime}

// Turn is the outcome of handling one inbound message.
type Turn struct {
	Response    string
	Done        bool
	ReferenceID string
}

// Committer persists a complete slot set.
type Committer interface {
	Commit(ctx context.Context, ent extract.Entities) (schedule.Confirmation, error)
}

// Controller merges each turn's extracted entities into the subject's
// context and either asks for what is still missing or commits.
type Controller struct {
	store *session.Store
	exec  Committer
}

// NewController creates a Controller over the given context store and
// executor.
func NewController(store *session.Store, exec Committer) *Controller {
	return &Controller{store: store, exec: exec}
}

// HandleTurn processes one message of a scheduling dialogue. Turns for the
// same subject are serialized on the store's per-subject lock so concurrent
// deliveries cannot lose merged fields.
func (c *Controller) HandleTurn(ctx context.Context, text, subjectID string) Turn {
	unlock := c.store.Lock(subjectID)
	defer unlock()

	delta := extract.Extract(text)

	current := c.store.Get(subjectID)
	if current == nil {
		current = c.store.Create(subjectID)
	}
	merged := current.Entities.Merge(delta)

	missing := missingSlots(merged)
	if len(missing) > 0 {
		c.store.Update(subjectID, delta)
		slog.Debug("scheduling dialogue continues",
			"subject", subjectID, "missing", len(missing))
		return Turn{Response: renderPrompt(merged, missing)}
	}

	// Session is terminal from here on: the context goes away whether the
	// commit succeeds or not, so a failed commit restarts the dialogue.
	c.store.Delete(subjectID)

	conf, err := c.exec.Commit(ctx, merged)
	if err != nil {
		slog.Warn("appointment commit failed", "subject", subjectID, "error", err)
		return Turn{Response: renderFailure(err, merged)}
	}

	return Turn{
		Response:    renderConfirmation(conf),
		Done:        true,
		ReferenceID: conf.Number,
	}
}

// missingSlots returns the required slots not yet satisfied, in question
// order.
func missingSlots(e extract.Entities) []Slot {
	var missing []Slot
	for _, slot := range requiredSlots {
		if !slotFilled(slot, e) {
			missing = append(missing, slot)
		}
	}
	return missing
}

func slotFilled(slot Slot, e extract.Entities) bool {
	switch slot {
	case SlotCustomer:
		return e.CustomerName != "" || e.Plate != ""
	case SlotVehicle:
		return e.VehicleModel != "" || e.Plate != ""
	case SlotDate:
		return e.Weekday != 0 || !e.ExplicitDate.IsZero()
	case SlotTime:
		return e.Hour != ""
	case SlotService:
		return e.ServiceType != ""
	}
	return false
}
