package models

import (
	"errors"
	"strings"
	"testing"
)

func TestServiceValidate(t *testing.T) {
	valid := Service{TenantID: "ten-1", Name: "Massage", DurationMinutes: 60, Price: 100}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	cases := []struct {
		name string
		svc  Service
		want error
	}{
		{"empty name", Service{TenantID: "ten-1", Name: "  ", DurationMinutes: 60}, ErrEmptyName},
		{"name too long", Service{TenantID: "ten-1", Name: strings.Repeat("x", 256), DurationMinutes: 60}, ErrNameTooLong},
		{"duration too short", Service{TenantID: "ten-1", Name: "Chat", DurationMinutes: 10}, ErrInvalidDuration},
		{"duration too long", Service{TenantID: "ten-1", Name: "Retreat", DurationMinutes: 500}, ErrInvalidDuration},
		{"negative price", Service{TenantID: "ten-1", Name: "Massage", DurationMinutes: 60, Price: -1}, ErrNegativePrice},
		{"missing tenant", Service{Name: "Massage", DurationMinutes: 60}, ErrMissingTenant},
	}
	for _, tc := range cases {
		if err := tc.svc.Validate(); !errors.Is(err, tc.want) {
			t.Errorf("%s: Validate() error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCategoryValidate(t *testing.T) {
	valid := Category{TenantID: "ten-1", Name: "Massage"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
	if err := (&Category{TenantID: "ten-1"}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Validate() error = %v, want ErrEmptyName", err)
	}
	if err := (&Category{Name: "Massage"}).Validate(); !errors.Is(err, ErrMissingTenant) {
		t.Errorf("Validate() error = %v, want ErrMissingTenant", err)
	}
}

func TestAppointmentValidate(t *testing.T) {
	valid := Appointment{TenantID: "ten-1", ProviderID: "doc-1", ServiceID: "svc-1", Date: "2024-06-03", StartTime: "10:00"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	missing := valid
	missing.StartTime = ""
	if err := missing.Validate(); !errors.Is(err, ErrMissingDateTime) {
		t.Errorf("Validate() error = %v, want ErrMissingDateTime", err)
	}
}

func TestFlowContextCloneIsDeep(t *testing.T) {
	fc := FlowContext{
		User:        &User{ID: "usr-1"},
		Tenant:      &Tenant{ID: "ten-1"},
		Appointment: &Appointment{ID: "apt-1", Status: AppointmentStatusPending},
		Payment:     &Payment{Amount: 100},
		Catalog: &CatalogMutation{
			Operation: CatalogOperationCreate,
			Service:   &Service{Name: "Massage"},
		},
		Notifications: []Notification{{ID: "ntf-1"}},
	}

	clone := fc.Clone()
	clone.Appointment.Status = AppointmentStatusCancelled
	clone.Payment.Amount = 0
	clone.Catalog.Service.Name = "Changed"
	clone.Notifications[0].ID = "ntf-2"

	if fc.Appointment.Status != AppointmentStatusPending {
		t.Error("clone mutation leaked into original appointment")
	}
	if fc.Payment.Amount != 100 {
		t.Error("clone mutation leaked into original payment")
	}
	if fc.Catalog.Service.Name != "Massage" {
		t.Error("clone mutation leaked into original catalog record")
	}
	if fc.Notifications[0].ID != "ntf-1" {
		t.Error("clone mutation leaked into original notifications")
	}
}

func TestIsValidCatalogOperation(t *testing.T) {
	for _, op := range []CatalogOperation{CatalogOperationCreate, CatalogOperationUpdate, CatalogOperationDelete, CatalogOperationToggleStatus} {
		if !IsValidCatalogOperation(op) {
			t.Errorf("IsValidCatalogOperation(%q) = false, want true", op)
		}
	}
	if IsValidCatalogOperation("archive") {
		t.Error(`IsValidCatalogOperation("archive") = true, want false`)
	}
}
