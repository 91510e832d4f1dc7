// Package store provides storage backends for ClinicPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const pgAppointmentColumns = `id, tenant_id, provider_id, provider_type, patient_id, patient_name, patient_email, patient_phone, service_id, date, start_time, end_time, status`

func (s *PostgresStore) CreateAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}
	if appt.ProviderType == "" {
		appt.ProviderType = models.ProviderTypeDoctor
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (`+pgAppointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		appt.ID, appt.TenantID, appt.ProviderID, appt.ProviderType,
		nilIfEmpty(appt.PatientID), nilIfEmpty(appt.PatientName), nilIfEmpty(appt.PatientEmail), nilIfEmpty(appt.PatientPhone),
		appt.ServiceID, appt.Date, appt.StartTime, nilIfEmpty(appt.EndTime), appt.Status,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation && strings.Contains(pqErr.Constraint, "appointments_slot") {
			slog.Warn("PostgresStore.CreateAppointment: slot conflict", "provider", appt.ProviderID, "date", appt.Date, "time", appt.StartTime)
			return appt, ErrSlotConflict
		}
		slog.Error("PostgresStore.CreateAppointment failed", "error", err, "provider", appt.ProviderID)
		return appt, fmt.Errorf("failed to insert appointment: %w", err)
	}
	slog.Debug("PostgresStore.CreateAppointment succeeded", "id", appt.ID, "provider", appt.ProviderID, "date", appt.Date)
	return appt, nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, id string, patch AppointmentPatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.Date != nil {
		add("date", *patch.Date)
	}
	if patch.StartTime != nil {
		add("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}
	if patch.ProviderID != nil {
		add("provider_id", *patch.ProviderID)
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE appointments SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore.UpdateAppointment failed", "error", err, "id", id)
		return fmt.Errorf("failed to update appointment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	slog.Debug("PostgresStore.UpdateAppointment succeeded", "id", id)
	return nil
}

func (s *PostgresStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgAppointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) ListProviderAppointments(ctx context.Context, tenantID, providerID, date string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgAppointmentColumns+` FROM appointments
		WHERE tenant_id = $1 AND provider_id = $2 AND date = $3
		ORDER BY start_time`, tenantID, providerID, date)
	if err != nil {
		slog.Error("PostgresStore.ListProviderAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *PostgresStore) ListAppointmentsOnDate(ctx context.Context, date string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgAppointmentColumns+` FROM appointments
		WHERE date = $1 ORDER BY start_time`, date)
	if err != nil {
		slog.Error("PostgresStore.ListAppointmentsOnDate query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

const pgServiceColumns = `id, tenant_id, category_id, name, description, duration_minutes, price, is_active`

func (s *PostgresStore) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (`+pgServiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		svc.ID, svc.TenantID, nilIfEmpty(svc.CategoryID), svc.Name, nilIfEmpty(svc.Description),
		svc.DurationMinutes, svc.Price, svc.IsActive,
	)
	if err != nil {
		slog.Error("PostgresStore.CreateService failed", "error", err, "name", svc.Name)
		return svc, fmt.Errorf("failed to insert service: %w", err)
	}
	slog.Debug("PostgresStore.CreateService succeeded", "id", svc.ID, "name", svc.Name)
	return svc, nil
}

func (s *PostgresStore) UpdateService(ctx context.Context, svc models.Service) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE services SET category_id = $1, name = $2, description = $3,
			duration_minutes = $4, price = $5, is_active = $6, updated_at = NOW()
		WHERE id = $7`,
		nilIfEmpty(svc.CategoryID), svc.Name, nilIfEmpty(svc.Description),
		svc.DurationMinutes, svc.Price, svc.IsActive, svc.ID,
	)
	if err != nil {
		slog.Error("PostgresStore.UpdateService failed", "error", err, "id", svc.ID)
		return fmt.Errorf("failed to update service %s: %w", svc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteService(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore.DeleteService failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete service %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetService(ctx context.Context, id string) (*models.Service, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgServiceColumns+` FROM services WHERE id = $1`, id)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *PostgresStore) ListServices(ctx context.Context, tenantID string) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pgServiceColumns+` FROM services WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		slog.Error("PostgresStore.ListServices query failed", "error", err)
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()
	return collectServices(rows)
}

func (s *PostgresStore) ListServicesByCategory(ctx context.Context, categoryID string) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pgServiceColumns+` FROM services WHERE category_id = $1 ORDER BY name`, categoryID)
	if err != nil {
		slog.Error("PostgresStore.ListServicesByCategory query failed", "error", err)
		return nil, fmt.Errorf("failed to query services by category: %w", err)
	}
	defer rows.Close()
	return collectServices(rows)
}

const pgCategoryColumns = `id, tenant_id, parent_id, name, description, is_active`

func (s *PostgresStore) CreateCategory(ctx context.Context, cat models.Category) (models.Category, error) {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (`+pgCategoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		cat.ID, cat.TenantID, nilIfEmpty(cat.ParentID), cat.Name, nilIfEmpty(cat.Description), cat.IsActive,
	)
	if err != nil {
		slog.Error("PostgresStore.CreateCategory failed", "error", err, "name", cat.Name)
		return cat, fmt.Errorf("failed to insert category: %w", err)
	}
	slog.Debug("PostgresStore.CreateCategory succeeded", "id", cat.ID, "name", cat.Name)
	return cat, nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, cat models.Category) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET parent_id = $1, name = $2, description = $3, is_active = $4, updated_at = NOW()
		WHERE id = $5`,
		nilIfEmpty(cat.ParentID), cat.Name, nilIfEmpty(cat.Description), cat.IsActive, cat.ID,
	)
	if err != nil {
		slog.Error("PostgresStore.UpdateCategory failed", "error", err, "id", cat.ID)
		return fmt.Errorf("failed to update category %s: %w", cat.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore.DeleteCategory failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgCategoryColumns+` FROM categories WHERE id = $1`, id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, tenantID string) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pgCategoryColumns+` FROM categories WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		slog.Error("PostgresStore.ListCategories query failed", "error", err)
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

const pgWindowColumns = `id, tenant_id, provider_id, weekday, start_time, end_time, lunch_start, lunch_end`

func (s *PostgresStore) UpsertAvailabilityWindow(ctx context.Context, win models.AvailabilityWindow) (models.AvailabilityWindow, error) {
	if win.ID == "" {
		win.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO availability_windows (`+pgWindowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, provider_id, weekday)
		DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
			lunch_start = EXCLUDED.lunch_start, lunch_end = EXCLUDED.lunch_end, updated_at = NOW()`,
		win.ID, win.TenantID, win.ProviderID, win.Weekday,
		win.StartTime, win.EndTime, nilIfEmpty(win.LunchStart), nilIfEmpty(win.LunchEnd),
	)
	if err != nil {
		slog.Error("PostgresStore.UpsertAvailabilityWindow failed", "error", err, "provider", win.ProviderID)
		return win, fmt.Errorf("failed to upsert availability window: %w", err)
	}
	slog.Debug("PostgresStore.UpsertAvailabilityWindow succeeded", "provider", win.ProviderID, "weekday", win.Weekday)
	return win, nil
}

func (s *PostgresStore) GetAvailabilityWindow(ctx context.Context, tenantID, providerID string, weekday int) (*models.AvailabilityWindow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pgWindowColumns+` FROM availability_windows
		WHERE tenant_id = $1 AND provider_id = $2 AND weekday = $3`, tenantID, providerID, weekday)
	w, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *PostgresStore) ListAvailabilityWindows(ctx context.Context, tenantID, providerID string) ([]models.AvailabilityWindow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgWindowColumns+` FROM availability_windows
		WHERE tenant_id = $1 AND provider_id = $2 ORDER BY weekday`, tenantID, providerID)
	if err != nil {
		slog.Error("PostgresStore.ListAvailabilityWindows query failed", "error", err)
		return nil, fmt.Errorf("failed to query availability windows: %w", err)
	}
	defer rows.Close()
	var windows []models.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func collectAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var appts []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func collectServices(rows *sql.Rows) ([]models.Service, error) {
	var svcs []models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		svcs = append(svcs, s)
	}
	return svcs, rows.Err()
}

func collectCategories(rows *sql.Rows) ([]models.Category, error) {
	var cats []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
