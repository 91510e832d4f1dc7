package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// recordingSender captures sent notifications and optionally fails a recipient.
type recordingSender struct {
	failFor string
	sent    []models.Notification
}

func (r *recordingSender) Send(_ context.Context, n models.Notification) error {
	if r.failFor != "" && n.Recipient == r.failFor {
		return errors.New("provider rejected")
	}
	r.sent = append(r.sent, n)
	return nil
}

func TestDispatcherRoutesByChannel(t *testing.T) {
	sms := &recordingSender{}
	email := &recordingSender{}
	d := NewDispatcher(map[models.NotificationChannel]Sender{
		models.NotificationChannelSMS:   sms,
		models.NotificationChannelEmail: email,
	})

	err := d.Send(context.Background(), models.Notification{
		ID:        "ntf-1",
		Channel:   models.NotificationChannelSMS,
		Recipient: "+15551230000",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(sms.sent) != 1 || len(email.sent) != 0 {
		t.Errorf("sms sent = %d, email sent = %d; want 1, 0", len(sms.sent), len(email.sent))
	}
}

func TestDispatcherDropsUnknownChannel(t *testing.T) {
	d := NewDispatcher(nil)
	err := d.Send(context.Background(), models.Notification{
		Channel:   models.NotificationChannelEmail,
		Recipient: "pat@example.com",
	})
	if err != nil {
		t.Fatalf("Send() error = %v, unknown channels are dropped, not errors", err)
	}
}

func TestDispatcherRejectsEmptyRecipient(t *testing.T) {
	d := NewDispatcher(map[models.NotificationChannel]Sender{
		models.NotificationChannelEmail: &recordingSender{},
	})
	err := d.Send(context.Background(), models.Notification{
		ID:      "ntf-2",
		Channel: models.NotificationChannelEmail,
	})
	if err == nil {
		t.Fatal("Send() error = nil, want missing-recipient error")
	}
}

// fixedLister returns a canned appointment list.
type fixedLister struct {
	date  string
	appts []models.Appointment
	err   error
}

func (f *fixedLister) ListAppointmentsOnDate(_ context.Context, date string) ([]models.Appointment, error) {
	f.date = date
	return f.appts, f.err
}

func TestReminderJobSendsForTomorrow(t *testing.T) {
	lister := &fixedLister{appts: []models.Appointment{
		{ID: "apt-1", Date: "2024-06-04", StartTime: "10:00", PatientPhone: "+15551230000", Status: models.AppointmentStatusConfirmed},
		{ID: "apt-2", Date: "2024-06-04", StartTime: "11:00", PatientEmail: "pat@example.com", Status: models.AppointmentStatusPending},
		{ID: "apt-3", Date: "2024-06-04", StartTime: "12:00", PatientPhone: "+15559990000", Status: models.AppointmentStatusCancelled},
		{ID: "apt-4", Date: "2024-06-04", StartTime: "13:00", Status: models.AppointmentStatusConfirmed}, // no contact
	}}
	sender := &recordingSender{}
	job := NewReminderJob(lister, sender)
	job.now = func() time.Time { return time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC) }

	job.Run(context.Background())

	if lister.date != "2024-06-04" {
		t.Errorf("queried date = %q, want 2024-06-04", lister.date)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("reminders sent = %d, want 2 (cancelled and contactless skipped)", len(sender.sent))
	}
	if sender.sent[0].Channel != models.NotificationChannelSMS || sender.sent[0].Recipient != "+15551230000" {
		t.Errorf("first reminder = %+v, want SMS to the phone number", sender.sent[0])
	}
	if sender.sent[1].Channel != models.NotificationChannelEmail || sender.sent[1].Recipient != "pat@example.com" {
		t.Errorf("second reminder = %+v, want email fallback", sender.sent[1])
	}
	for _, n := range sender.sent {
		if n.Type != models.NotificationTypeReminder {
			t.Errorf("notification type = %q, want reminder", n.Type)
		}
	}
}

func TestReminderJobContinuesPastFailures(t *testing.T) {
	lister := &fixedLister{appts: []models.Appointment{
		{ID: "apt-1", Date: "2024-06-04", StartTime: "10:00", PatientPhone: "+15551110000", Status: models.AppointmentStatusConfirmed},
		{ID: "apt-2", Date: "2024-06-04", StartTime: "11:00", PatientPhone: "+15552220000", Status: models.AppointmentStatusConfirmed},
	}}
	sender := &recordingSender{failFor: "+15551110000"}
	job := NewReminderJob(lister, sender)
	job.now = func() time.Time { return time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC) }

	job.Run(context.Background())

	if len(sender.sent) != 1 || sender.sent[0].Recipient != "+15552220000" {
		t.Fatalf("reminders sent = %+v, want the second despite the first failing", sender.sent)
	}
}

func TestNewTwilioSenderRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewTwilioSender(); err == nil {
		t.Fatal("NewTwilioSender() error = nil, want missing-credentials error")
	}
	if _, err := NewTwilioSender(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Fatal("NewTwilioSender() error = nil, want missing from number")
	}
	if _, err := NewTwilioSender(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromNumber("+15550000000")); err != nil {
		t.Fatalf("NewTwilioSender() error = %v", err)
	}
}
