// Package store provides storage backends for ClinicPipe.
//
// It defines the persistence interface the collaborator API serves from, with
// PostgreSQL, SQLite, and in-memory implementations. The store is the sole
// arbiter of conflicting slot writes: a uniqueness constraint on
// (tenant, provider, date, start time) for non-cancelled appointments turns a
// booking race into a conflict error instead of a double booking.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// ErrSlotConflict is returned when an appointment insert loses the race for a
// slot that another non-cancelled appointment already occupies.
var ErrSlotConflict = errors.New("slot already booked for this provider")

// ErrNotFound is returned when a record lookup by id matches nothing.
var ErrNotFound = errors.New("record not found")

// AppointmentPatch carries the partial fields an appointment update may set.
// Nil fields are left untouched.
type AppointmentPatch struct {
	Status     *models.AppointmentStatus
	Date       *string
	StartTime  *string
	EndTime    *string
	ProviderID *string
}

// Store is the persistence interface served by the collaborator API.
type Store interface {
	// Appointments
	CreateAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, patch AppointmentPatch) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListProviderAppointments(ctx context.Context, tenantID, providerID, date string) ([]models.Appointment, error)
	ListAppointmentsOnDate(ctx context.Context, date string) ([]models.Appointment, error)

	// Services
	CreateService(ctx context.Context, svc models.Service) (models.Service, error)
	UpdateService(ctx context.Context, svc models.Service) error
	DeleteService(ctx context.Context, id string) error
	GetService(ctx context.Context, id string) (*models.Service, error)
	ListServices(ctx context.Context, tenantID string) ([]models.Service, error)
	ListServicesByCategory(ctx context.Context, categoryID string) ([]models.Service, error)

	// Categories
	CreateCategory(ctx context.Context, cat models.Category) (models.Category, error)
	UpdateCategory(ctx context.Context, cat models.Category) error
	DeleteCategory(ctx context.Context, id string) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context, tenantID string) ([]models.Category, error)

	// Availability windows
	UpsertAvailabilityWindow(ctx context.Context, win models.AvailabilityWindow) (models.AvailabilityWindow, error)
	GetAvailabilityWindow(ctx context.Context, tenantID, providerID string, weekday int) (*models.AvailabilityWindow, error)
	ListAvailabilityWindows(ctx context.Context, tenantID, providerID string) ([]models.AvailabilityWindow, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN (Postgres URL or SQLite file path).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (assumed to be a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
