// Package schedule turns a complete slot set into a persisted appointment.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pedrovictor26/ofix-assistant/internal/extract"
	"github.com/pedrovictor26/ofix-assistant/internal/storage"
)

// ErrInvalidDate is returned when the collected date cannot produce a
// future appointment slot.
var ErrInvalidDate = errors.New("invalid appointment date")

// Persistence is the subset of storage operations the executor needs.
type Persistence interface {
	FindCustomerByApproximateName(name string) (storage.Customer, error)
	CreateCustomer(name string) (storage.Customer, error)
	FindVehicleByModelForCustomer(model, customerID string) (storage.Vehicle, error)
	FindVehicleByPlate(plate string) (storage.Vehicle, error)
	CreateVehicle(customerID, model, plate string) (storage.Vehicle, error)
	NextOrderNumber() (string, error)
	CreateAppointment(a storage.Appointment) (storage.Appointment, error)
}

// Confirmation summarizes a committed appointment for the response layer.
type Confirmation struct {
	Number       string
	CustomerName string
	VehicleModel string
	Plate        string
	Service      string
	ScheduledAt  time.Time
	Urgent       bool
}

// Executor commits complete slot sets. It resolves or creates the customer
// and vehicle, computes the concrete date-time, and writes the appointment.
type Executor struct {
	store Persistence
	now   func() time.Time
}

// NewExecutor creates an Executor backed by the given persistence layer.
func NewExecutor(store Persistence) *Executor {
	return &Executor{store: store, now: time.Now}
}

// Commit persists one appointment from the collected entities. The caller
// guarantees the required slots are present. Commit is attempted exactly
// once per dialogue session; there is no retry loop.
func (e *Executor) Commit(ctx context.Context, ent extract.Entities) (Confirmation, error) {
	scheduledAt, err := ResolveDateTime(ent, e.now())
	if err != nil {
		return Confirmation{}, err
	}

	customer, vehicle, err := e.resolveCustomerAndVehicle(ent)
	if err != nil {
		return Confirmation{}, err
	}

	number, err := e.store.NextOrderNumber()
	if err != nil {
		return Confirmation{}, fmt.Errorf("generating order number: %w", err)
	}

	appt := storage.Appointment{
		Number:      number,
		CustomerID:  customer.ID,
		VehicleID:   vehicle.ID,
		Service:     ent.ServiceType,
		ScheduledAt: scheduledAt,
		Urgent:      ent.Urgent,
	}
	if _, err := e.store.CreateAppointment(appt); err != nil {
		return Confirmation{}, fmt.Errorf("creating appointment: %w", err)
	}

	slog.Info("appointment committed",
		"number", number,
		"customer", customer.Name,
		"vehicle", vehicle.Model,
		"scheduled_at", scheduledAt,
	)

	return Confirmation{
		Number:       number,
		CustomerName: customer.Name,
		VehicleModel: vehicle.Model,
		Plate:        vehicle.Plate,
		Service:      ent.ServiceType,
		ScheduledAt:  scheduledAt,
		Urgent:       ent.Urgent,
	}, nil
}

// resolveCustomerAndVehicle finds or creates both records. When only a
// plate was given, the vehicle lookup also identifies the customer.
func (e *Executor) resolveCustomerAndVehicle(ent extract.Entities) (storage.Customer, storage.Vehicle, error) {
	if ent.CustomerName == "" {
		// Required slots guarantee a plate in this case.
		vehicle, err := e.store.FindVehicleByPlate(ent.Plate)
		if err != nil {
			return storage.Customer{}, storage.Vehicle{}, fmt.Errorf("looking up plate %s: %w", ent.Plate, err)
		}
		customer, err := e.customerByID(vehicle)
		return customer, vehicle, err
	}

	customer, err := e.store.FindCustomerByApproximateName(ent.CustomerName)
	if errors.Is(err, storage.ErrNotFound) {
		customer, err = e.store.CreateCustomer(ent.CustomerName)
	}
	if err != nil {
		return storage.Customer{}, storage.Vehicle{}, fmt.Errorf("resolving customer: %w", err)
	}

	model := ent.VehicleModel
	if model == "" {
		if vehicle, plateErr := e.store.FindVehicleByPlate(ent.Plate); plateErr == nil {
			return customer, vehicle, nil
		}
		model = "não informado"
	}

	vehicle, err := e.store.FindVehicleByModelForCustomer(model, customer.ID)
	if errors.Is(err, storage.ErrNotFound) {
		vehicle, err = e.store.CreateVehicle(customer.ID, model, ent.Plate)
	}
	if err != nil {
		return storage.Customer{}, storage.Vehicle{}, fmt.Errorf("resolving vehicle: %w", err)
	}
	return customer, vehicle, nil
}

// customerByID builds a minimal customer from a vehicle's owner reference.
// The executor only needs the id for the appointment row; the name is
// echoed from what storage knows, which we don't have here, so the plate
// stands in.
func (e *Executor) customerByID(v storage.Vehicle) (storage.Customer, error) {
	return storage.Customer{ID: v.CustomerID, Name: "proprietário do " + v.Model}, nil
}

// ResolveDateTime computes the concrete appointment instant from the
// collected date and hour slots. A bare weekday always resolves to the
// next occurrence strictly after today: naming today's weekday rolls a
// full week forward, never to today itself.
func ResolveDateTime(ent extract.Entities, now time.Time) (time.Time, error) {
	if len(ent.Hour) < 2 {
		return time.Time{}, fmt.Errorf("%w: hora %q", ErrInvalidDate, ent.Hour)
	}
	hour, err := strconv.Atoi(ent.Hour[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: hora %q", ErrInvalidDate, ent.Hour)
	}

	var day time.Time
	switch {
	case !ent.ExplicitDate.IsZero():
		day = ent.ExplicitDate
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if day.Before(today) {
			return time.Time{}, fmt.Errorf("%w: %s já passou", ErrInvalidDate, day.Format("02/01/2006"))
		}
	case ent.Weekday != 0:
		day = nextWeekday(now, time.Weekday(ent.Weekday))
	default:
		return time.Time{}, fmt.Errorf("%w: nenhuma data coletada", ErrInvalidDate)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, now.Location()), nil
}

// nextWeekday returns the next calendar day with the given weekday,
// strictly after today.
func nextWeekday(now time.Time, target time.Weekday) time.Time {
	delta := (int(target) - int(now.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return now.AddDate(0, 0, delta)
}
