// Appointment booking flow: validate availability, create the appointment,
// initiate the payment stub, send the confirmation record. A failure at any
// step rolls back the completed ones — most importantly, a created appointment
// is cancelled so no dangling pending booking survives a failed flow.

package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ClinicPipe/ClinicPipe/internal/engine"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/ClinicPipe/ClinicPipe/internal/util"
)

// Step names of the booking flow.
const (
	StepValidateAvailability = "validate_availability"
	StepCreateAppointment    = "create_appointment"
	StepInitiatePayment      = "initiate_payment"
	StepSendConfirmation     = "send_confirmation"
)

// DefaultSlotDurationMinutes is used when the booking request does not carry
// the service duration.
const DefaultSlotDurationMinutes = 30

// BookingFlow builds the appointment_booking flow.
func BookingFlow(deps Deps) *engine.Flow {
	return &engine.Flow{
		Name: FlowAppointmentBooking,
		Steps: []engine.Step{
			validateAvailabilityStep(deps),
			createAppointmentStep(deps),
			initiatePaymentStep(deps),
			sendConfirmationStep(deps),
		},
	}
}

// slotDuration returns the appointment's slot granularity in minutes.
func slotDuration(appt *models.Appointment) int {
	if appt.DurationMinutes > 0 {
		return appt.DurationMinutes
	}
	return DefaultSlotDurationMinutes
}

func validateAvailabilityStep(deps Deps) engine.Step {
	return engine.Step{
		Name: StepValidateAvailability,
		Validate: func(fc models.FlowContext) error {
			if fc.Tenant == nil {
				return models.ErrMissingTenant
			}
			if fc.Appointment == nil {
				return models.ErrMissingDateTime
			}
			return fc.Appointment.Validate()
		},
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			appt := fc.Appointment
			slots, err := deps.Availability.QueryAvailability(ctx, fc.Tenant.ID, appt.ProviderID, appt.Date, slotDuration(appt))
			if err != nil {
				return fc, err
			}
			for _, slot := range slots {
				if slot == appt.StartTime {
					fc.Appointment.Status = models.AppointmentStatusPending
					slog.Debug("booking.validate_availability: slot is free", "provider", appt.ProviderID, "date", appt.Date, "time", appt.StartTime)
					return fc, nil
				}
			}
			return fc, &models.SlotUnavailableError{ProviderID: appt.ProviderID, Date: appt.Date, Time: appt.StartTime}
		},
		// No rollback: this step performs no side effect.
	}
}

func createAppointmentStep(deps Deps) engine.Step {
	return engine.Step{
		Name: StepCreateAppointment,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			appt := *fc.Appointment
			appt.Status = models.AppointmentStatusPending
			if appt.EndTime == "" {
				if end, err := util.AddMinutes(appt.StartTime, slotDuration(&appt)); err == nil {
					appt.EndTime = end
				}
			}
			created, err := deps.Appointments.CreateAppointment(ctx, appt)
			if err != nil {
				return fc, err
			}
			fc.Appointment = &created
			slog.Info("booking.create_appointment: appointment persisted", "id", created.ID, "provider", created.ProviderID, "date", created.Date)
			deps.Events.Emit(models.EventAppointmentCreated, fc)
			return fc, nil
		},
		Rollback: func(ctx context.Context, fc models.FlowContext) error {
			if fc.Appointment == nil || fc.Appointment.ID == "" {
				return nil
			}
			if err := deps.Appointments.CancelAppointment(ctx, fc.Appointment.ID); err != nil {
				return fmt.Errorf("failed to cancel appointment %s: %w", fc.Appointment.ID, err)
			}
			slog.Info("booking.create_appointment: rollback cancelled appointment", "id", fc.Appointment.ID)
			deps.Events.Emit(models.EventAppointmentCancelled, fc)
			return nil
		},
	}
}

func initiatePaymentStep(deps Deps) engine.Step {
	return engine.Step{
		Name: StepInitiatePayment,
		Validate: func(fc models.FlowContext) error {
			if fc.Payment == nil || fc.Payment.Amount <= 0 {
				return models.ErrInvalidPaymentAmount
			}
			return nil
		},
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			// Payment-intent stub only: no gateway call happens here.
			fc.Payment.Status = models.PaymentStatusProcessing
			fc.Payment.Reference = util.GeneratePaymentReference()
			slog.Debug("booking.initiate_payment: payment stub created", "reference", fc.Payment.Reference, "amount", fc.Payment.Amount)
			deps.Events.Emit(models.EventPaymentInitiated, fc)
			return fc, nil
		},
	}
}

func sendConfirmationStep(deps Deps) engine.Step {
	return engine.Step{
		Name: StepSendConfirmation,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			recipient := ""
			if fc.User != nil {
				recipient = fc.User.Email
			}
			n := models.Notification{
				ID:        util.GenerateNotificationID(),
				Type:      models.NotificationTypeConfirmation,
				Channel:   models.NotificationChannelEmail,
				Recipient: recipient,
				Body:      confirmationBody(fc.Appointment),
				Sent:      true,
			}
			// Delivery is a collaborator concern; the record is marked sent
			// regardless, and a delivery error never fails the booking.
			if deps.Notifier != nil {
				if err := deps.Notifier.Send(ctx, n); err != nil {
					slog.Error("booking.send_confirmation: delivery failed", "recipient", recipient, "error", err)
				}
			}
			fc.Notifications = append(fc.Notifications, n)
			deps.Events.Emit(models.EventNotificationSent, fc)
			return fc, nil
		},
	}
}

func confirmationBody(appt *models.Appointment) string {
	if appt == nil {
		return "Your appointment has been booked."
	}
	return fmt.Sprintf("Your appointment on %s at %s has been booked.", appt.Date, appt.StartTime)
}
