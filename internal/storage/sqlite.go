// Package storage persists workshop records (customers, vehicles,
// appointments) in a local SQLite database.
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned on uniqueness violations (duplicate plate or
// appointment number).
var ErrConflict = errors.New("record conflict")

// Store wraps a SQLite database with the persistence operations the
// scheduling engine needs.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ofix.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	default:
		return err
	}
}

// normalizeName lowercases and collapses whitespace for approximate lookup.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// --- Customers ---

// FindCustomerByApproximateName matches case- and whitespace-insensitively,
// falling back to a substring match, and returns ErrNotFound on a miss.
func (s *Store) FindCustomerByApproximateName(name string) (Customer, error) {
	normalized := normalizeName(name)

	var c Customer
	var createdAt string
	err := s.db.QueryRow(
		`SELECT id, name, created_at FROM customers WHERE name_normalized = ? LIMIT 1`,
		normalized,
	).Scan(&c.ID, &c.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = s.db.QueryRow(
			`SELECT id, name, created_at FROM customers
			 WHERE name_normalized LIKE '%' || ? || '%'
			 ORDER BY length(name_normalized) ASC LIMIT 1`,
			normalized,
		).Scan(&c.ID, &c.Name, &createdAt)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return c, nil
}

// CreateCustomer inserts a new customer and returns it.
func (s *Store) CreateCustomer(name string) (Customer, error) {
	c := Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO customers (id, name, name_normalized, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, normalizeName(c.Name), c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Customer{}, mapError(err)
	}
	return c, nil
}

// --- Vehicles ---

// FindVehicleByModelForCustomer returns the customer's vehicle of the given
// model, or ErrNotFound.
func (s *Store) FindVehicleByModelForCustomer(model, customerID string) (Vehicle, error) {
	var v Vehicle
	var plate sql.NullString
	var createdAt string
	err := s.db.QueryRow(
		`SELECT id, customer_id, model, plate, created_at FROM vehicles
		 WHERE customer_id = ? AND lower(model) = lower(?) LIMIT 1`,
		customerID, model,
	).Scan(&v.ID, &v.CustomerID, &v.Model, &plate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Vehicle{}, ErrNotFound
	}
	if err != nil {
		return Vehicle{}, err
	}
	v.Plate = plate.String
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return v, nil
}

// FindVehicleByPlate returns the vehicle with the given normalized plate,
// or ErrNotFound.
func (s *Store) FindVehicleByPlate(plate string) (Vehicle, error) {
	var v Vehicle
	var dbPlate sql.NullString
	var createdAt string
	err := s.db.QueryRow(
		`SELECT id, customer_id, model, plate, created_at FROM vehicles WHERE plate = ? LIMIT 1`,
		strings.ToUpper(plate),
	).Scan(&v.ID, &v.CustomerID, &v.Model, &dbPlate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Vehicle{}, ErrNotFound
	}
	if err != nil {
		return Vehicle{}, err
	}
	v.Plate = dbPlate.String
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return v, nil
}

// CreateVehicle inserts a vehicle for the customer. An empty plate is
// stored as NULL so the UNIQUE constraint only applies to real plates.
func (s *Store) CreateVehicle(customerID, model, plate string) (Vehicle, error) {
	v := Vehicle{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Model:      model,
		Plate:      strings.ToUpper(plate),
		CreatedAt:  time.Now().UTC(),
	}
	var plateVal any
	if v.Plate != "" {
		plateVal = v.Plate
	}
	_, err := s.db.Exec(
		`INSERT INTO vehicles (id, customer_id, model, plate, created_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.CustomerID, v.Model, plateVal, v.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Vehicle{}, mapError(err)
	}
	return v, nil
}

// --- Appointments ---

// NextOrderNumber increments the persistent counter and returns a formatted
// sequential order number ("OS-000042").
func (s *Store) NextOrderNumber() (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE counters SET value = value + 1 WHERE name = 'order_number'`); err != nil {
		return "", err
	}
	var value int64
	if err := tx.QueryRow(`SELECT value FROM counters WHERE name = 'order_number'`).Scan(&value); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return fmt.Sprintf("OS-%06d", value), nil
}

// CreateAppointment inserts the appointment record.
func (s *Store) CreateAppointment(a Appointment) (Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	urgent := 0
	if a.Urgent {
		urgent = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO appointments (id, number, customer_id, vehicle_id, service, scheduled_at, urgent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Number, a.CustomerID, a.VehicleID, a.Service,
		a.ScheduledAt.Format(time.RFC3339), urgent, a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Appointment{}, mapError(err)
	}
	return a, nil
}

// FindAppointmentByNumber returns the appointment with the given order
// number, or ErrNotFound.
func (s *Store) FindAppointmentByNumber(number string) (Appointment, error) {
	var a Appointment
	var scheduledAt, createdAt string
	var urgent int
	err := s.db.QueryRow(
		`SELECT id, number, customer_id, vehicle_id, service, scheduled_at, urgent, created_at
		 FROM appointments WHERE number = ? LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(number)),
	).Scan(&a.ID, &a.Number, &a.CustomerID, &a.VehicleID, &a.Service, &scheduledAt, &urgent, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, err
	}
	a.Urgent = urgent == 1
	a.ScheduledAt, _ = time.Parse(time.RFC3339, scheduledAt)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return a, nil
}

// CountAppointments returns the total number of committed appointments.
func (s *Store) CountAppointments() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM appointments`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
