package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestQueryAvailabilityDecodesSlots(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/availability" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("provider_id"); got != "doc-1" {
			t.Errorf("expected provider_id doc-1, got %q", got)
		}
		json.NewEncoder(w).Encode(models.Success([]string{"09:00", "10:00"}))
	})

	slots, err := client.QueryAvailability(context.Background(), "t1", "doc-1", "2024-06-01", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 2 || slots[0] != "09:00" {
		t.Errorf("unexpected slots: %v", slots)
	}
}

func TestCreateAppointmentSurfacesCollaboratorMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.Error("slot already booked for this provider"))
	})

	_, err := client.CreateAppointment(context.Background(), models.Appointment{ProviderID: "doc-1"})
	var pe *models.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if pe.StatusCode != http.StatusConflict {
		t.Errorf("expected status 409, got %d", pe.StatusCode)
	}
	if pe.Message != "slot already booked for this provider" {
		t.Errorf("expected collaborator message to be carried, got %q", pe.Message)
	}
}

func TestCancelAppointmentSendsCancelledPatch(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody AppointmentUpdate
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(models.Success(nil))
	})

	if err := client.CancelAppointment(context.Background(), "apt-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/appointments/apt-1" {
		t.Errorf("expected PATCH /appointments/apt-1, got %s %s", gotMethod, gotPath)
	}
	if gotBody.Status != models.AppointmentStatusCancelled {
		t.Errorf("expected cancelled status in patch, got %q", gotBody.Status)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected an error when no base URL is configured")
	}
}
