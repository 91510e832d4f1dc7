package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/ClinicPipe/ClinicPipe/internal/util"
)

// AppointmentLister is the slice of the store the reminder job reads.
type AppointmentLister interface {
	ListAppointmentsOnDate(ctx context.Context, date string) ([]models.Appointment, error)
}

// ReminderJob sends a reminder for every appointment happening tomorrow.
// Scheduled once per day; the date math uses the server's local calendar.
type ReminderJob struct {
	store  AppointmentLister
	sender Sender
	now    func() time.Time
}

// NewReminderJob builds the job over the appointment store and a sender.
func NewReminderJob(store AppointmentLister, sender Sender) *ReminderJob {
	return &ReminderJob{store: store, sender: sender, now: time.Now}
}

// Run sends reminders for tomorrow's non-cancelled appointments. Each failed
// delivery is logged and the remaining reminders still go out.
func (j *ReminderJob) Run(ctx context.Context) {
	date := j.now().AddDate(0, 0, 1).Format("2006-01-02")
	appts, err := j.store.ListAppointmentsOnDate(ctx, date)
	if err != nil {
		slog.Error("ReminderJob.Run: listing appointments failed", "date", date, "error", err)
		return
	}

	sent := 0
	for _, appt := range appts {
		if appt.Status == models.AppointmentStatusCancelled {
			continue
		}
		n := reminderFor(appt)
		if n.Recipient == "" {
			slog.Warn("ReminderJob.Run: appointment has no reachable contact", "appointment", appt.ID)
			continue
		}
		if err := j.sender.Send(ctx, n); err != nil {
			slog.Error("ReminderJob.Run: reminder delivery failed", "appointment", appt.ID, "error", err)
			continue
		}
		sent++
	}
	slog.Info("ReminderJob.Run: reminders processed", "date", date, "appointments", len(appts), "sent", sent)
}

// reminderFor prefers SMS when the patient left a phone number.
func reminderFor(appt models.Appointment) models.Notification {
	channel := models.NotificationChannelEmail
	recipient := appt.PatientEmail
	if appt.PatientPhone != "" {
		channel = models.NotificationChannelSMS
		recipient = appt.PatientPhone
	}
	return models.Notification{
		ID:        util.GenerateNotificationID(),
		Type:      models.NotificationTypeReminder,
		Channel:   channel,
		Recipient: recipient,
		Body:      reminderBody(appt),
		Sent:      true,
	}
}

func reminderBody(appt models.Appointment) string {
	return "Reminder: you have an appointment on " + appt.Date + " at " + appt.StartTime + "."
}
