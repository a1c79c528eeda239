package storage

import "time"

// Customer is a workshop client.
type Customer struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Vehicle belongs to a customer. Plate may be empty when the customer only
// gave the model during scheduling.
type Vehicle struct {
	ID         string
	CustomerID string
	Model      string
	Plate      string
	CreatedAt  time.Time
}

// Appointment is a committed scheduling record.
type Appointment struct {
	ID          string
	Number      string
	CustomerID  string
	VehicleID   string
	Service     string
	ScheduledAt time.Time
	Urgent      bool
	CreatedAt   time.Time
}
