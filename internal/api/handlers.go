// Package api provides HTTP handlers for ClinicPipe endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ClinicPipe/ClinicPipe/internal/flow"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/ClinicPipe/ClinicPipe/internal/store"
)

// availabilityHandler handles GET /availability.
func (s *Server) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.availabilityHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	providerID := q.Get("provider_id")
	date := q.Get("date")
	if tenantID == "" || providerID == "" || date == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant_id, provider_id and date are required"))
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("date must be YYYY-MM-DD"))
		return
	}
	duration := flow.DefaultSlotDurationMinutes
	if raw := q.Get("duration"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("duration must be a positive number of minutes"))
			return
		}
		duration = parsed
	}

	slots, err := s.resolver.Slots(r.Context(), tenantID, providerID, date, duration)
	if err != nil {
		slog.Error("Server.availabilityHandler: resolving slots failed", "provider", providerID, "date", date, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve availability"))
		return
	}
	if slots == nil {
		slots = []string{}
	}
	slog.Debug("Server.availabilityHandler: slots resolved", "provider", providerID, "date", date, "count", len(slots))
	writeJSONResponse(w, http.StatusOK, models.Success(slots))
}

// bookAppointmentHandler handles POST /appointments/book by running the
// booking flow.
func (s *Server) bookAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.bookAppointmentHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var fc models.FlowContext
	if err := json.NewDecoder(r.Body).Decode(&fc); err != nil {
		slog.Warn("Server.bookAppointmentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	final, err := s.engine.ExecuteFlow(r.Context(), flow.FlowAppointmentBooking, fc)
	if err != nil {
		slog.Warn("Server.bookAppointmentHandler: booking flow failed", "error", err)
		writeFlowError(w, err)
		return
	}
	slog.Info("Server.bookAppointmentHandler: appointment booked", "id", final.Appointment.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Appointment booked", final))
}

// appointmentsHandler handles POST /appointments (direct create, used by the
// collaborator path) and GET /appointments (provider listing).
func (s *Server) appointmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.appointmentsHandler: processing request", "method", r.Method)
	switch r.Method {
	case http.MethodPost:
		s.createAppointmentHandler(w, r)
	case http.MethodGet:
		s.listAppointmentsHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) createAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var appt models.Appointment
	if err := json.NewDecoder(r.Body).Decode(&appt); err != nil {
		slog.Warn("Server.createAppointmentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := appt.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if appt.Status == "" {
		appt.Status = models.AppointmentStatusPending
	}

	created, err := s.st.CreateAppointment(r.Context(), appt)
	if err != nil {
		slog.Warn("Server.createAppointmentHandler: create failed", "provider", appt.ProviderID, "error", err)
		writeFlowError(w, err)
		return
	}
	slog.Info("Server.createAppointmentHandler: appointment created", "id", created.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(created))
}

func (s *Server) listAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	providerID := q.Get("provider_id")
	date := q.Get("date")
	if tenantID == "" || providerID == "" || date == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant_id, provider_id and date are required"))
		return
	}

	appts, err := s.st.ListProviderAppointments(r.Context(), tenantID, providerID, date)
	if err != nil {
		slog.Error("Server.listAppointmentsHandler: listing failed", "provider", providerID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list appointments"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(appts))
}

// appointmentPatchRequest is the wire shape of PATCH /appointments/{id}.
// Absent fields are left untouched.
type appointmentPatchRequest struct {
	Status     *models.AppointmentStatus `json:"status,omitempty"`
	Date       *string                   `json:"date,omitempty"`
	StartTime  *string                   `json:"start_time,omitempty"`
	EndTime    *string                   `json:"end_time,omitempty"`
	ProviderID *string                   `json:"provider_id,omitempty"`
}

// appointmentByIDHandler handles GET and PATCH on /appointments/{id}.
func (s *Server) appointmentByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := strings.TrimPrefix(r.URL.Path, "/appointments/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown appointment endpoint"))
		return
	}
	slog.Debug("Server.appointmentByIDHandler: processing request", "method", r.Method, "id", id)

	switch r.Method {
	case http.MethodGet:
		appt, err := s.st.GetAppointment(r.Context(), id)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		if appt == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Appointment not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(appt))
	case http.MethodPatch:
		var req appointmentPatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.appointmentByIDHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		patch := store.AppointmentPatch{
			Status:     req.Status,
			Date:       req.Date,
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
			ProviderID: req.ProviderID,
		}
		if err := s.st.UpdateAppointment(r.Context(), id, patch); err != nil {
			slog.Warn("Server.appointmentByIDHandler: update failed", "id", id, "error", err)
			writeFlowError(w, err)
			return
		}
		if req.Status != nil && *req.Status == models.AppointmentStatusCancelled {
			slog.Info("Server.appointmentByIDHandler: appointment cancelled", "id", id)
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Appointment updated", nil))
	default:
		w.Header().Set("Allow", "GET, PATCH")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// availabilityWindowsHandler handles PUT /availability-windows (upsert) and
// GET /availability-windows (list for one provider).
func (s *Server) availabilityWindowsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.availabilityWindowsHandler: processing request", "method", r.Method)
	switch r.Method {
	case http.MethodPut:
		var win models.AvailabilityWindow
		if err := json.NewDecoder(r.Body).Decode(&win); err != nil {
			slog.Warn("Server.availabilityWindowsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if win.TenantID == "" || win.ProviderID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant_id and provider_id are required"))
			return
		}
		if win.Weekday < 0 || win.Weekday > 6 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("weekday must be 0 (Sunday) through 6 (Saturday)"))
			return
		}
		if win.StartTime == "" || win.EndTime == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("start_time and end_time are required"))
			return
		}

		saved, err := s.st.UpsertAvailabilityWindow(r.Context(), win)
		if err != nil {
			slog.Error("Server.availabilityWindowsHandler: upsert failed", "provider", win.ProviderID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save availability window"))
			return
		}
		s.engine.Emit(models.EventDoctorAvailabilityUpdate, models.FlowContext{
			Tenant: &models.Tenant{ID: saved.TenantID},
		})
		slog.Info("Server.availabilityWindowsHandler: window saved", "provider", saved.ProviderID, "weekday", saved.Weekday)
		writeJSONResponse(w, http.StatusOK, models.Success(saved))
	case http.MethodGet:
		q := r.URL.Query()
		tenantID := q.Get("tenant_id")
		providerID := q.Get("provider_id")
		if tenantID == "" || providerID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant_id and provider_id are required"))
			return
		}
		wins, err := s.st.ListAvailabilityWindows(r.Context(), tenantID, providerID)
		if err != nil {
			slog.Error("Server.availabilityWindowsHandler: listing failed", "provider", providerID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list availability windows"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(wins))
	default:
		w.Header().Set("Allow", "GET, PUT")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}
