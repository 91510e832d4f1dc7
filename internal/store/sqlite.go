// Package store provides storage backends for ClinicPipe.
//
// This file implements the SQLite-backed store, the default for single-node
// and development deployments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running SQLite migrations", "path", dsn)
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isSlotConflict reports whether err is the unique-index violation raised by
// idx_appointments_slot.
func isSlotConflict(err error) bool {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(sqErr.Error(), "appointments")
}

const sqliteAppointmentColumns = `id, tenant_id, provider_id, provider_type, patient_id, patient_name, patient_email, patient_phone, service_id, date, start_time, end_time, status`

func (s *SQLiteStore) CreateAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error) {
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
		INSERT INTO appointments (`+sqliteAppointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.ID, appt.TenantID, appt.ProviderID, appt.ProviderType,
		nilIfEmpty(appt.PatientID), nilIfEmpty(appt.PatientName), nilIfEmpty(appt.PatientEmail), nilIfEmpty(appt.PatientPhone),
		appt.ServiceID, appt.Date, appt.StartTime, nilIfEmpty(appt.EndTime), appt.Status,
	)
	if err != nil {
		if isSlotConflict(err) {
			slog.Warn("SQLiteStore.CreateAppointment: slot conflict", "provider", appt.ProviderID, "date", appt.Date, "time", appt.StartTime)
			return appt, ErrSlotConflict
		}
		slog.Error("SQLiteStore.CreateAppointment failed", "error", err, "provider", appt.ProviderID)
		return appt, fmt.Errorf("failed to insert appointment: %w", err)
	}
	slog.Debug("SQLiteStore.CreateAppointment succeeded", "id", appt.ID, "provider", appt.ProviderID, "date", appt.Date)
	return appt, nil
}

func (s *SQLiteStore) UpdateAppointment(ctx context.Context, id string, patch AppointmentPatch) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []interface{}{}
	add := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
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
	query := fmt.Sprintf("UPDATE appointments SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore.UpdateAppointment failed", "error", err, "id", id)
		return fmt.Errorf("failed to update appointment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	slog.Debug("SQLiteStore.UpdateAppointment succeeded", "id", id)
	return nil
}

func (s *SQLiteStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteAppointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) ListProviderAppointments(ctx context.Context, tenantID, providerID, date string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteAppointmentColumns+` FROM appointments
		WHERE tenant_id = ? AND provider_id = ? AND date = ?
		ORDER BY start_time`, tenantID, providerID, date)
	if err != nil {
		slog.Error("SQLiteStore.ListProviderAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *SQLiteStore) ListAppointmentsOnDate(ctx context.Context, date string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteAppointmentColumns+` FROM appointments
		WHERE date = ? ORDER BY start_time`, date)
	if err != nil {
		slog.Error("SQLiteStore.ListAppointmentsOnDate query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

const sqliteServiceColumns = `id, tenant_id, category_id, name, description, duration_minutes, price, is_active`

func (s *SQLiteStore) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (`+sqliteServiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.ID, svc.TenantID, nilIfEmpty(svc.CategoryID), svc.Name, nilIfEmpty(svc.Description),
		svc.DurationMinutes, svc.Price, svc.IsActive,
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateService failed", "error", err, "name", svc.Name)
		return svc, fmt.Errorf("failed to insert service: %w", err)
	}
	return svc, nil
}

func (s *SQLiteStore) UpdateService(ctx context.Context, svc models.Service) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE services SET category_id = ?, name = ?, description = ?,
			duration_minutes = ?, price = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		nilIfEmpty(svc.CategoryID), svc.Name, nilIfEmpty(svc.Description),
		svc.DurationMinutes, svc.Price, svc.IsActive, svc.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore.UpdateService failed", "error", err, "id", svc.ID)
		return fmt.Errorf("failed to update service %s: %w", svc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteService(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore.DeleteService failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete service %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetService(ctx context.Context, id string) (*models.Service, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteServiceColumns+` FROM services WHERE id = ?`, id)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *SQLiteStore) ListServices(ctx context.Context, tenantID string) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteServiceColumns+` FROM services WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore.ListServices query failed", "error", err)
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()
	return collectServices(rows)
}

func (s *SQLiteStore) ListServicesByCategory(ctx context.Context, categoryID string) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteServiceColumns+` FROM services WHERE category_id = ? ORDER BY name`, categoryID)
	if err != nil {
		slog.Error("SQLiteStore.ListServicesByCategory query failed", "error", err)
		return nil, fmt.Errorf("failed to query services by category: %w", err)
	}
	defer rows.Close()
	return collectServices(rows)
}

const sqliteCategoryColumns = `id, tenant_id, parent_id, name, description, is_active`

func (s *SQLiteStore) CreateCategory(ctx context.Context, cat models.Category) (models.Category, error) {
	if cat.ID == "" {
		cat.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (`+sqliteCategoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cat.ID, cat.TenantID, nilIfEmpty(cat.ParentID), cat.Name, nilIfEmpty(cat.Description), cat.IsActive,
	)
	if err != nil {
		slog.Error("SQLiteStore.CreateCategory failed", "error", err, "name", cat.Name)
		return cat, fmt.Errorf("failed to insert category: %w", err)
	}
	return cat, nil
}

func (s *SQLiteStore) UpdateCategory(ctx context.Context, cat models.Category) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET parent_id = ?, name = ?, description = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		nilIfEmpty(cat.ParentID), cat.Name, nilIfEmpty(cat.Description), cat.IsActive, cat.ID,
	)
	if err != nil {
		slog.Error("SQLiteStore.UpdateCategory failed", "error", err, "id", cat.ID)
		return fmt.Errorf("failed to update category %s: %w", cat.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore.DeleteCategory failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete category %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCategoryColumns+` FROM categories WHERE id = ?`, id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context, tenantID string) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteCategoryColumns+` FROM categories WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore.ListCategories query failed", "error", err)
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

const sqliteWindowColumns = `id, tenant_id, provider_id, weekday, start_time, end_time, lunch_start, lunch_end`

func (s *SQLiteStore) UpsertAvailabilityWindow(ctx context.Context, win models.AvailabilityWindow) (models.AvailabilityWindow, error) {
	if win.ID == "" {
		win.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO availability_windows (`+sqliteWindowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, provider_id, weekday)
		DO UPDATE SET start_time = excluded.start_time, end_time = excluded.end_time,
			lunch_start = excluded.lunch_start, lunch_end = excluded.lunch_end, updated_at = CURRENT_TIMESTAMP`,
		win.ID, win.TenantID, win.ProviderID, win.Weekday,
		win.StartTime, win.EndTime, nilIfEmpty(win.LunchStart), nilIfEmpty(win.LunchEnd),
	)
	if err != nil {
		slog.Error("SQLiteStore.UpsertAvailabilityWindow failed", "error", err, "provider", win.ProviderID)
		return win, fmt.Errorf("failed to upsert availability window: %w", err)
	}
	return win, nil
}

func (s *SQLiteStore) GetAvailabilityWindow(ctx context.Context, tenantID, providerID string, weekday int) (*models.AvailabilityWindow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteWindowColumns+` FROM availability_windows
		WHERE tenant_id = ? AND provider_id = ? AND weekday = ?`, tenantID, providerID, weekday)
	w, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *SQLiteStore) ListAvailabilityWindows(ctx context.Context, tenantID, providerID string) ([]models.AvailabilityWindow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteWindowColumns+` FROM availability_windows
		WHERE tenant_id = ? AND provider_id = ? ORDER BY weekday`, tenantID, providerID)
	if err != nil {
		slog.Error("SQLiteStore.ListAvailabilityWindows query failed", "error", err)
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
