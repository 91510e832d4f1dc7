// Package flow defines the concrete business flows ClinicPipe executes: the
// appointment booking sequence and the catalog (service/category) mutation
// flows. Steps depend on small collaborator interfaces; the backend package's
// HTTP client satisfies all of them in production and tests substitute hand
// mocks.
package flow

import (
	"context"

	"github.com/ClinicPipe/ClinicPipe/internal/engine"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// Flow names exposed for invocation.
const (
	FlowAppointmentBooking = "appointment_booking"

	FlowServiceCreate       = "service_create"
	FlowServiceUpdate       = "service_update"
	FlowServiceDelete       = "service_delete"
	FlowServiceToggleStatus = "service_toggle_status"

	FlowCategoryCreate       = "category_create"
	FlowCategoryUpdate       = "category_update"
	FlowCategoryDelete       = "category_delete"
	FlowCategoryToggleStatus = "category_toggle_status"
)

// AvailabilityQuerier queries a provider's free slots from the collaborator.
type AvailabilityQuerier interface {
	QueryAvailability(ctx context.Context, tenantID, providerID, date string, durationMinutes int) ([]string, error)
}

// AppointmentClient persists appointments through the collaborator.
type AppointmentClient interface {
	CreateAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error)
	CancelAppointment(ctx context.Context, id string) error
}

// CatalogClient persists services and categories through the collaborator.
type CatalogClient interface {
	CreateService(ctx context.Context, svc models.Service) (models.Service, error)
	UpdateService(ctx context.Context, svc models.Service) error
	DeleteService(ctx context.Context, id string) error
	ListServices(ctx context.Context, tenantID string) ([]models.Service, error)
	ListServicesByCategory(ctx context.Context, categoryID string) ([]models.Service, error)

	CreateCategory(ctx context.Context, cat models.Category) (models.Category, error)
	UpdateCategory(ctx context.Context, cat models.Category) error
	DeleteCategory(ctx context.Context, id string) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context, tenantID string) ([]models.Category, error)
}

// Emitter publishes flow events. The engine satisfies this; steps get it
// injected rather than holding the engine itself.
type Emitter interface {
	Emit(event models.EventName, fc models.FlowContext)
}

// Notifier delivers notification records. Delivery is best effort from the
// flow's perspective; a delivery failure never fails a step.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// Deps carries the collaborators the flow steps call.
type Deps struct {
	Availability AvailabilityQuerier
	Appointments AppointmentClient
	Catalog      CatalogClient
	Events       Emitter
	Notifier     Notifier // optional
}

// Register builds every flow and registers it into the engine. Called once
// from the bootstrap point, before the engine serves any execution.
func Register(e *engine.Engine, deps Deps) {
	e.RegisterFlow(BookingFlow(deps))
	for _, f := range CatalogFlows(deps) {
		e.RegisterFlow(f)
	}
}
