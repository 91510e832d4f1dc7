package store

import (
	"database/sql"
	"fmt"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner abstracts sql.Row and sql.Rows so scan helpers serve both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAppointment scans an Appointment from a row with the canonical column
// order used by every appointment query.
func scanAppointment(row rowScanner) (models.Appointment, error) {
	var a models.Appointment
	var patientID, patientName, patientEmail, patientPhone, endTime sql.NullString
	err := row.Scan(
		&a.ID, &a.TenantID, &a.ProviderID, &a.ProviderType,
		&patientID, &patientName, &patientEmail, &patientPhone,
		&a.ServiceID, &a.Date, &a.StartTime, &endTime, &a.Status,
	)
	if err != nil {
		return a, fmt.Errorf("scan appointment failed: %w", err)
	}
	a.PatientID = patientID.String
	a.PatientName = patientName.String
	a.PatientEmail = patientEmail.String
	a.PatientPhone = patientPhone.String
	a.EndTime = endTime.String
	return a, nil
}

// scanService scans a Service from the canonical service column order.
func scanService(row rowScanner) (models.Service, error) {
	var s models.Service
	var categoryID, description sql.NullString
	err := row.Scan(&s.ID, &s.TenantID, &categoryID, &s.Name, &description, &s.DurationMinutes, &s.Price, &s.IsActive)
	if err != nil {
		return s, fmt.Errorf("scan service failed: %w", err)
	}
	s.CategoryID = categoryID.String
	s.Description = description.String
	return s, nil
}

// scanCategory scans a Category from the canonical category column order.
func scanCategory(row rowScanner) (models.Category, error) {
	var c models.Category
	var parentID, description sql.NullString
	err := row.Scan(&c.ID, &c.TenantID, &parentID, &c.Name, &description, &c.IsActive)
	if err != nil {
		return c, fmt.Errorf("scan category failed: %w", err)
	}
	c.ParentID = parentID.String
	c.Description = description.String
	return c, nil
}

// scanWindow scans an AvailabilityWindow from the canonical window column order.
func scanWindow(row rowScanner) (models.AvailabilityWindow, error) {
	var w models.AvailabilityWindow
	var lunchStart, lunchEnd sql.NullString
	err := row.Scan(&w.ID, &w.TenantID, &w.ProviderID, &w.Weekday, &w.StartTime, &w.EndTime, &lunchStart, &lunchEnd)
	if err != nil {
		return w, fmt.Errorf("scan availability window failed: %w", err)
	}
	w.LunchStart = lunchStart.String
	w.LunchEnd = lunchEnd.String
	return w, nil
}
