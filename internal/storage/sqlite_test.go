package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCustomerRoundTrip(t *testing.T) {
	s := openTestStore(t)

	created, err := s.CreateCustomer("  João Silva ")
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if created.Name != "João Silva" {
		t.Errorf("Name = %q, want trimmed João Silva", created.Name)
	}

	// Exact match is case- and whitespace-insensitive.
	found, err := s.FindCustomerByApproximateName("joão  SILVA")
	if err != nil {
		t.Fatalf("FindCustomerByApproximateName: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("found ID %q, want %q", found.ID, created.ID)
	}

	// A first name falls back to substring matching.
	found, err = s.FindCustomerByApproximateName("joão")
	if err != nil {
		t.Fatalf("substring lookup: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("substring lookup found %q, want %q", found.ID, created.ID)
	}

	if _, err := s.FindCustomerByApproximateName("Maria"); !errors.Is(err, ErrNotFound) {
		t.Errorf("miss err = %v, want ErrNotFound", err)
	}
}

func TestVehicleLookups(t *testing.T) {
	s := openTestStore(t)

	c, err := s.CreateCustomer("João")
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	v, err := s.CreateVehicle(c.ID, "Gol", "abc-1234")
	if err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}
	if v.Plate != "ABC-1234" {
		t.Errorf("Plate = %q, want normalized ABC-1234", v.Plate)
	}

	byModel, err := s.FindVehicleByModelForCustomer("gol", c.ID)
	if err != nil {
		t.Fatalf("FindVehicleByModelForCustomer: %v", err)
	}
	if byModel.ID != v.ID {
		t.Errorf("byModel.ID = %q, want %q", byModel.ID, v.ID)
	}

	byPlate, err := s.FindVehicleByPlate("abc-1234")
	if err != nil {
		t.Fatalf("FindVehicleByPlate: %v", err)
	}
	if byPlate.CustomerID != c.ID {
		t.Errorf("byPlate.CustomerID = %q, want %q", byPlate.CustomerID, c.ID)
	}

	if _, err := s.FindVehicleByPlate("ZZZ-0000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("miss err = %v, want ErrNotFound", err)
	}
}

func TestDuplicatePlateConflict(t *testing.T) {
	s := openTestStore(t)

	c, _ := s.CreateCustomer("João")
	if _, err := s.CreateVehicle(c.ID, "Gol", "ABC-1234"); err != nil {
		t.Fatalf("first CreateVehicle: %v", err)
	}
	if _, err := s.CreateVehicle(c.ID, "Onix", "ABC-1234"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate plate err = %v, want ErrConflict", err)
	}

	// Plateless vehicles never conflict with each other.
	if _, err := s.CreateVehicle(c.ID, "Fox", ""); err != nil {
		t.Fatalf("first plateless vehicle: %v", err)
	}
	if _, err := s.CreateVehicle(c.ID, "Polo", ""); err != nil {
		t.Fatalf("second plateless vehicle: %v", err)
	}
}

func TestNextOrderNumberSequential(t *testing.T) {
	s := openTestStore(t)

	for i, want := range []string{"OS-000001", "OS-000002", "OS-000003"} {
		got, err := s.NextOrderNumber()
		if err != nil {
			t.Fatalf("NextOrderNumber #%d: %v", i+1, err)
		}
		if got != want {
			t.Errorf("NextOrderNumber #%d = %q, want %q", i+1, got, want)
		}
	}
}

func TestAppointmentRoundTrip(t *testing.T) {
	s := openTestStore(t)

	c, _ := s.CreateCustomer("João")
	v, _ := s.CreateVehicle(c.ID, "Gol", "ABC-1234")
	number, _ := s.NextOrderNumber()

	scheduledAt := time.Date(2024, 1, 8, 14, 0, 0, 0, time.UTC)
	created, err := s.CreateAppointment(Appointment{
		Number:      number,
		CustomerID:  c.ID,
		VehicleID:   v.ID,
		Service:     "revisão",
		ScheduledAt: scheduledAt,
		Urgent:      true,
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if created.ID == "" {
		t.Error("CreateAppointment did not assign an id")
	}

	found, err := s.FindAppointmentByNumber("os-000001")
	if err != nil {
		t.Fatalf("FindAppointmentByNumber: %v", err)
	}
	if found.Service != "revisão" || !found.Urgent {
		t.Errorf("found = %+v", found)
	}
	if !found.ScheduledAt.Equal(scheduledAt) {
		t.Errorf("ScheduledAt = %v, want %v", found.ScheduledAt, scheduledAt)
	}

	if _, err := s.FindAppointmentByNumber("OS-999999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("miss err = %v, want ErrNotFound", err)
	}

	// Duplicate order number maps to a conflict.
	if _, err := s.CreateAppointment(Appointment{
		Number:      number,
		CustomerID:  c.ID,
		VehicleID:   v.ID,
		Service:     "revisão",
		ScheduledAt: scheduledAt,
	}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate number err = %v, want ErrConflict", err)
	}

	n, err := s.CountAppointments()
	if err != nil {
		t.Fatalf("CountAppointments: %v", err)
	}
	if n != 1 {
		t.Errorf("CountAppointments = %d, want 1", n)
	}
}

func TestAppointmentForeignKeys(t *testing.T) {
	s := openTestStore(t)

	number, _ := s.NextOrderNumber()
	_, err := s.CreateAppointment(Appointment{
		Number:      number,
		CustomerID:  "missing",
		VehicleID:   "missing",
		Service:     "revisão",
		ScheduledAt: time.Now().UTC(),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("dangling references err = %v, want ErrNotFound", err)
	}
}
