package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/ClinicPipe/ClinicPipe/internal/engine"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// mockAvailability returns a canned slot list.
type mockAvailability struct {
	slots        []string
	err          error
	lastDuration int
}

func (m *mockAvailability) QueryAvailability(_ context.Context, _, _, _ string, durationMinutes int) ([]string, error) {
	m.lastDuration = durationMinutes
	return m.slots, m.err
}

// mockAppointments records create and cancel calls.
type mockAppointments struct {
	createErr error
	created   []models.Appointment
	cancelled []string
}

func (m *mockAppointments) CreateAppointment(_ context.Context, appt models.Appointment) (models.Appointment, error) {
	if m.createErr != nil {
		return models.Appointment{}, m.createErr
	}
	appt.ID = "apt-1"
	m.created = append(m.created, appt)
	return appt, nil
}

func (m *mockAppointments) CancelAppointment(_ context.Context, id string) error {
	m.cancelled = append(m.cancelled, id)
	return nil
}

// recordingEmitter captures emitted events in order.
type recordingEmitter struct {
	events []models.EventName
}

func (r *recordingEmitter) Emit(event models.EventName, _ models.FlowContext) {
	r.events = append(r.events, event)
}

// mockNotifier records sends and optionally fails them.
type mockNotifier struct {
	err  error
	sent []models.Notification
}

func (m *mockNotifier) Send(_ context.Context, n models.Notification) error {
	m.sent = append(m.sent, n)
	return m.err
}

func bookingContext() models.FlowContext {
	return models.FlowContext{
		User:   &models.User{ID: "usr-1", Email: "pat@example.com"},
		Tenant: &models.Tenant{ID: "ten-1"},
		Appointment: &models.Appointment{
			TenantID:        "ten-1",
			ProviderID:      "doc-1",
			ServiceID:       "svc-1",
			Date:            "2024-06-03",
			StartTime:       "10:00",
			DurationMinutes: 30,
		},
		Payment: &models.Payment{Amount: 150, Currency: "USD"},
	}
}

func runBooking(t *testing.T, deps Deps, fc models.FlowContext) (models.FlowContext, error) {
	t.Helper()
	e := engine.New()
	e.RegisterFlow(BookingFlow(deps))
	return e.ExecuteFlow(context.Background(), FlowAppointmentBooking, fc)
}

func TestBookingFlowSuccess(t *testing.T) {
	avail := &mockAvailability{slots: []string{"09:00", "10:00", "11:00"}}
	appts := &mockAppointments{}
	emitter := &recordingEmitter{}
	notifier := &mockNotifier{}
	deps := Deps{Availability: avail, Appointments: appts, Events: emitter, Notifier: notifier}

	final, err := runBooking(t, deps, bookingContext())
	if err != nil {
		t.Fatalf("ExecuteFlow() error = %v", err)
	}
	if final.Appointment.ID != "apt-1" {
		t.Errorf("appointment ID = %q, want apt-1", final.Appointment.ID)
	}
	if final.Appointment.Status != models.AppointmentStatusPending {
		t.Errorf("appointment status = %q, want pending", final.Appointment.Status)
	}
	if final.Appointment.EndTime != "10:30" {
		t.Errorf("appointment end time = %q, want 10:30", final.Appointment.EndTime)
	}
	if final.Payment.Status != models.PaymentStatusProcessing {
		t.Errorf("payment status = %q, want processing", final.Payment.Status)
	}
	if final.Payment.Reference == "" {
		t.Error("payment reference not generated")
	}
	if len(final.Notifications) != 1 || !final.Notifications[0].Sent {
		t.Fatalf("notifications = %+v, want one sent confirmation", final.Notifications)
	}
	if final.Notifications[0].Recipient != "pat@example.com" {
		t.Errorf("notification recipient = %q, want pat@example.com", final.Notifications[0].Recipient)
	}
	if avail.lastDuration != 30 {
		t.Errorf("availability queried with duration %d, want 30", avail.lastDuration)
	}
	wantEvents := []models.EventName{
		models.EventAppointmentCreated,
		models.EventPaymentInitiated,
		models.EventNotificationSent,
	}
	if len(emitter.events) != len(wantEvents) {
		t.Fatalf("emitted events = %v, want %v", emitter.events, wantEvents)
	}
	for i, want := range wantEvents {
		if emitter.events[i] != want {
			t.Errorf("event[%d] = %q, want %q", i, emitter.events[i], want)
		}
	}
	if len(appts.cancelled) != 0 {
		t.Errorf("cancelled appointments = %v, want none", appts.cancelled)
	}
}

func TestBookingFlowSlotUnavailable(t *testing.T) {
	deps := Deps{
		Availability: &mockAvailability{slots: []string{"09:00", "11:00"}},
		Appointments: &mockAppointments{},
		Events:       &recordingEmitter{},
	}

	_, err := runBooking(t, deps, bookingContext())

	var execErr *models.StepExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("ExecuteFlow() error = %v, want StepExecutionError", err)
	}
	if execErr.Step != StepValidateAvailability {
		t.Errorf("failing step = %q, want %q", execErr.Step, StepValidateAvailability)
	}
	var slotErr *models.SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("error chain missing SlotUnavailableError: %v", err)
	}
	if slotErr.Time != "10:00" {
		t.Errorf("unavailable time = %q, want 10:00", slotErr.Time)
	}
}

func TestBookingFlowCreateFailureNoRollbackCalls(t *testing.T) {
	appts := &mockAppointments{createErr: &models.PersistenceError{Operation: "CreateAppointment", Message: "slot already booked"}}
	deps := Deps{
		Availability: &mockAvailability{slots: []string{"10:00"}},
		Appointments: appts,
		Events:       &recordingEmitter{},
	}

	_, err := runBooking(t, deps, bookingContext())

	var pe *models.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("error chain missing PersistenceError: %v", err)
	}
	// The appointment was never created, so rollback must not try to cancel.
	if len(appts.cancelled) != 0 {
		t.Errorf("cancelled appointments = %v, want none", appts.cancelled)
	}
}

func TestBookingFlowPaymentFailureCancelsAppointment(t *testing.T) {
	appts := &mockAppointments{}
	emitter := &recordingEmitter{}
	deps := Deps{
		Availability: &mockAvailability{slots: []string{"10:00"}},
		Appointments: appts,
		Events:       emitter,
	}
	fc := bookingContext()
	fc.Payment = &models.Payment{Amount: 0} // fails the initiate_payment precondition

	_, err := runBooking(t, deps, fc)

	var valErr *models.StepValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("ExecuteFlow() error = %v, want StepValidationError", err)
	}
	if valErr.Step != StepInitiatePayment {
		t.Errorf("failing step = %q, want %q", valErr.Step, StepInitiatePayment)
	}
	if !errors.Is(valErr.Err, models.ErrInvalidPaymentAmount) {
		t.Errorf("precondition error = %v, want ErrInvalidPaymentAmount", valErr.Err)
	}
	if len(appts.cancelled) != 1 || appts.cancelled[0] != "apt-1" {
		t.Fatalf("cancelled appointments = %v, want [apt-1]", appts.cancelled)
	}
	// The rollback announces the cancellation.
	found := false
	for _, ev := range emitter.events {
		if ev == models.EventAppointmentCancelled {
			found = true
		}
	}
	if !found {
		t.Errorf("emitted events = %v, want appointment.cancelled among them", emitter.events)
	}
}

func TestBookingFlowMissingTenantRejected(t *testing.T) {
	deps := Deps{
		Availability: &mockAvailability{slots: []string{"10:00"}},
		Appointments: &mockAppointments{},
		Events:       &recordingEmitter{},
	}
	fc := bookingContext()
	fc.Tenant = nil

	_, err := runBooking(t, deps, fc)

	var valErr *models.StepValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("ExecuteFlow() error = %v, want StepValidationError", err)
	}
	if valErr.Step != StepValidateAvailability {
		t.Errorf("failing step = %q, want %q", valErr.Step, StepValidateAvailability)
	}
}

func TestBookingFlowNotifierFailureDoesNotFailBooking(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("smtp down")}
	deps := Deps{
		Availability: &mockAvailability{slots: []string{"10:00"}},
		Appointments: &mockAppointments{},
		Events:       &recordingEmitter{},
		Notifier:     notifier,
	}

	final, err := runBooking(t, deps, bookingContext())
	if err != nil {
		t.Fatalf("ExecuteFlow() error = %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(notifier.sent))
	}
	if len(final.Notifications) != 1 || !final.Notifications[0].Sent {
		t.Errorf("notification record = %+v, want sent despite delivery failure", final.Notifications)
	}
}

func TestBookingFlowDefaultDuration(t *testing.T) {
	avail := &mockAvailability{slots: []string{"10:00"}}
	deps := Deps{
		Availability: avail,
		Appointments: &mockAppointments{},
		Events:       &recordingEmitter{},
	}
	fc := bookingContext()
	fc.Appointment.DurationMinutes = 0

	if _, err := runBooking(t, deps, fc); err != nil {
		t.Fatalf("ExecuteFlow() error = %v", err)
	}
	if avail.lastDuration != DefaultSlotDurationMinutes {
		t.Errorf("availability queried with duration %d, want %d", avail.lastDuration, DefaultSlotDurationMinutes)
	}
}
