// Package models defines the core data structures for ClinicPipe.
//
// It includes the flow context threaded through business flows, the booking
// domain entities (appointments, services, categories, availability windows),
// and the API response envelope shared across modules.
package models

import (
	"errors"
	"strings"
)

// UserRole identifies the role of an authenticated user within a tenant.
type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleStaff   UserRole = "staff"
	UserRoleDoctor  UserRole = "doctor"
	UserRolePatient UserRole = "patient"
)

// User carries the identity of the user who initiated a flow.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Role  UserRole `json:"role,omitempty"`
}

// Tenant identifies the isolated business account a flow operates within.
type Tenant struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	BusinessType string `json:"business_type,omitempty"` // e.g. "clinic", "spa", "wellness"
}

// ProviderType discriminates who an appointment is booked with.
// A provider is either a doctor or a staff member, never both.
type ProviderType string

const (
	ProviderTypeDoctor ProviderType = "doctor"
	ProviderTypeMember ProviderType = "member"
)

// AppointmentStatus represents the lifecycle state of an appointment.
type AppointmentStatus string

const (
	// AppointmentStatusPending indicates the appointment was created but not confirmed.
	AppointmentStatusPending AppointmentStatus = "pending"
	// AppointmentStatusConfirmed indicates the appointment was confirmed by the business.
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	// AppointmentStatusInProgress indicates the consultation is currently active.
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	// AppointmentStatusCompleted indicates the appointment took place.
	AppointmentStatusCompleted AppointmentStatus = "completed"
	// AppointmentStatusCancelled indicates the appointment was cancelled.
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is the booking record persisted by the collaborator backend.
// Dates and times are tenant-local wall-clock values ("2006-01-02" and "15:04")
// and are compared as such; no timezone conversion is ever applied to them.
type Appointment struct {
	ID           string       `json:"id,omitempty"`
	TenantID     string       `json:"tenant_id"`
	ProviderID   string       `json:"provider_id"`
	ProviderType ProviderType `json:"provider_type,omitempty"`
	PatientID    string       `json:"patient_id,omitempty"`
	PatientName  string       `json:"patient_name,omitempty"`
	PatientEmail string       `json:"patient_email,omitempty"`
	PatientPhone string       `json:"patient_phone,omitempty"`
	ServiceID    string       `json:"service_id"`
	Date         string       `json:"date"`       // YYYY-MM-DD, tenant-local
	StartTime    string       `json:"start_time"` // HH:MM, tenant-local
	EndTime      string       `json:"end_time,omitempty"`
	// DurationMinutes is the booked service's duration, used for slot
	// granularity and end-time computation. Supplied by the caller from the
	// chosen service.
	DurationMinutes int               `json:"duration_minutes,omitempty"`
	Status          AppointmentStatus `json:"status,omitempty"`
}

// PaymentStatus represents the state of a payment stub.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment is the in-process payment-intent stub attached to a booking.
// No gateway integration happens here; Reference is generated locally.
type Payment struct {
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency,omitempty"`
	Status    PaymentStatus `json:"status,omitempty"`
	Reference string        `json:"reference,omitempty"`
}

// NotificationType classifies a notification record.
type NotificationType string

const (
	NotificationTypeConfirmation NotificationType = "confirmation"
	NotificationTypeReminder     NotificationType = "reminder"
	NotificationTypeCancellation NotificationType = "cancellation"
)

// NotificationChannel identifies the delivery channel for a notification.
type NotificationChannel string

const (
	NotificationChannelEmail NotificationChannel = "email"
	NotificationChannelSMS   NotificationChannel = "sms"
)

// Notification is a delivery record produced by a flow. The flow core only
// constructs these; actual delivery is handled by the notify module.
type Notification struct {
	ID        string              `json:"id,omitempty"`
	Type      NotificationType    `json:"type"`
	Channel   NotificationChannel `json:"channel"`
	Recipient string              `json:"recipient"`
	Body      string              `json:"body,omitempty"`
	Sent      bool                `json:"sent"`
}

// Service is a bookable catalog entry (a consultation, treatment, etc.).
type Service struct {
	ID              string  `json:"id,omitempty"`
	TenantID        string  `json:"tenant_id"`
	CategoryID      string  `json:"category_id,omitempty"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	DurationMinutes int     `json:"duration_minutes"`
	Price           float64 `json:"price"`
	IsActive        bool    `json:"is_active"`
}

// Category groups services within a tenant's catalog.
type Category struct {
	ID          string `json:"id,omitempty"`
	TenantID    string `json:"tenant_id"`
	ParentID    string `json:"parent_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// CatalogOperation discriminates what a catalog flow's persist step does.
type CatalogOperation string

const (
	CatalogOperationCreate       CatalogOperation = "create"
	CatalogOperationUpdate       CatalogOperation = "update"
	CatalogOperationDelete       CatalogOperation = "delete"
	CatalogOperationToggleStatus CatalogOperation = "toggle_status"
)

// CatalogMutation carries the target record and operation for a catalog flow.
// Exactly one of Service or Category is set, matching the flow family.
type CatalogMutation struct {
	Operation CatalogOperation `json:"operation"`
	Service   *Service         `json:"service,omitempty"`
	Category  *Category        `json:"category,omitempty"`
}

// AvailabilityWindow is a provider's working window for one weekday.
// Weekday follows time.Weekday numbering (0 = Sunday). A provider with no
// window for a weekday is closed that day. Lunch break fields are optional;
// both must be set for the break to apply.
type AvailabilityWindow struct {
	ID         string `json:"id,omitempty"`
	TenantID   string `json:"tenant_id"`
	ProviderID string `json:"provider_id"`
	Weekday    int    `json:"weekday"`
	StartTime  string `json:"start_time"` // HH:MM
	EndTime    string `json:"end_time"`   // HH:MM
	LunchStart string `json:"lunch_start,omitempty"`
	LunchEnd   string `json:"lunch_end,omitempty"`
}

// FlowContext is the bag of domain data threaded through a flow execution.
// All fields are optional; each flow validates the subset it requires at
// entry. Steps receive a cloned context and return a new one, so no state is
// shared between steps other than through the returned value.
type FlowContext struct {
	User          *User            `json:"user,omitempty"`
	Tenant        *Tenant          `json:"tenant,omitempty"`
	Appointment   *Appointment     `json:"appointment,omitempty"`
	Payment       *Payment         `json:"payment,omitempty"`
	Notifications []Notification   `json:"notifications,omitempty"`
	Catalog       *CatalogMutation `json:"catalog,omitempty"`
}

// Clone returns a deep copy of the context. Pointer fields and the
// notifications slice are duplicated so a step cannot mutate its caller's view.
func (c FlowContext) Clone() FlowContext {
	out := FlowContext{}
	if c.User != nil {
		u := *c.User
		out.User = &u
	}
	if c.Tenant != nil {
		t := *c.Tenant
		out.Tenant = &t
	}
	if c.Appointment != nil {
		a := *c.Appointment
		out.Appointment = &a
	}
	if c.Payment != nil {
		p := *c.Payment
		out.Payment = &p
	}
	if c.Notifications != nil {
		out.Notifications = make([]Notification, len(c.Notifications))
		copy(out.Notifications, c.Notifications)
	}
	if c.Catalog != nil {
		m := *c.Catalog
		if c.Catalog.Service != nil {
			s := *c.Catalog.Service
			m.Service = &s
		}
		if c.Catalog.Category != nil {
			cat := *c.Catalog.Category
			m.Category = &cat
		}
		out.Catalog = &m
	}
	return out
}

// EventName identifies a flow engine event.
type EventName string

const (
	EventAppointmentCreated       EventName = "appointment.created"
	EventAppointmentConfirmed     EventName = "appointment.confirmed"
	EventAppointmentCancelled     EventName = "appointment.cancelled"
	EventPaymentInitiated         EventName = "payment.initiated"
	EventPaymentCompleted         EventName = "payment.completed"
	EventPaymentFailed            EventName = "payment.failed"
	EventNotificationSent         EventName = "notification.sent"
	EventUserAuthenticated        EventName = "user.authenticated"
	EventDoctorAvailabilityUpdate EventName = "doctor.availability_updated"
	// EventCatalogUpdated is emitted by the catalog flows' emit-event step;
	// the context's Catalog field carries the record and operation.
	EventCatalogUpdated EventName = "catalog.updated"
)

// Validation constants for catalog input validation
const (
	// MaxCatalogNameLength defines the maximum allowed length for service and category names
	MaxCatalogNameLength = 255
	// MinServiceDurationMinutes defines the shortest bookable service duration
	MinServiceDurationMinutes = 15
	// MaxServiceDurationMinutes defines the longest bookable service duration
	MaxServiceDurationMinutes = 480
)

// Error variables for better error handling and testability
var (
	ErrEmptyName          = errors.New("name cannot be empty")
	ErrNameTooLong        = errors.New("name exceeds maximum length")
	ErrMissingTenant      = errors.New("tenant id is required")
	ErrInvalidDuration    = errors.New("duration must be between 15 and 480 minutes")
	ErrNegativePrice      = errors.New("price cannot be negative")
	ErrMissingProvider    = errors.New("provider id is required")
	ErrMissingService     = errors.New("service id is required")
	ErrMissingDateTime    = errors.New("appointment date and time are required")
	ErrInvalidTimeOfDay   = errors.New("time must be in HH:MM format")
	ErrInvalidCatalogOp   = errors.New("invalid catalog operation")
	ErrMissingRecordID    = errors.New("record id is required for this operation")
	ErrMissingCatalogData = errors.New("catalog record is required")

	ErrInvalidPaymentAmount  = errors.New("payment amount must be greater than zero")
	ErrParentCategoryInvalid = errors.New("parent category must exist and be active")
)

// IsValidCatalogOperation checks if the given catalog operation is supported.
func IsValidCatalogOperation(op CatalogOperation) bool {
	switch op {
	case CatalogOperationCreate, CatalogOperationUpdate, CatalogOperationDelete, CatalogOperationToggleStatus:
		return true
	default:
		return false
	}
}

// Validate checks the field rules for a service mutation.
func (s *Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > MaxCatalogNameLength {
		return ErrNameTooLong
	}
	if s.DurationMinutes < MinServiceDurationMinutes || s.DurationMinutes > MaxServiceDurationMinutes {
		return ErrInvalidDuration
	}
	if s.Price < 0 {
		return ErrNegativePrice
	}
	if s.TenantID == "" {
		return ErrMissingTenant
	}
	return nil
}

// Validate checks the field rules for a category mutation.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > MaxCatalogNameLength {
		return ErrNameTooLong
	}
	if c.TenantID == "" {
		return ErrMissingTenant
	}
	return nil
}

// Validate checks that an appointment carries the fields the booking flow
// needs before it is handed to the engine. The UI is responsible for
// collecting these; this is the flow-entry schema check.
func (a *Appointment) Validate() error {
	if a.TenantID == "" {
		return ErrMissingTenant
	}
	if a.ProviderID == "" {
		return ErrMissingProvider
	}
	if a.ServiceID == "" {
		return ErrMissingService
	}
	if a.Date == "" || a.StartTime == "" {
		return ErrMissingDateTime
	}
	return nil
}
