package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ClinicPipe/ClinicPipe/internal/engine"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// mockCatalog is an in-memory CatalogClient backed by slices.
type mockCatalog struct {
	services   []models.Service
	categories []models.Category

	createServiceErr  error
	updateCategoryErr error

	deletedServices   []string
	deletedCategories []string
	nextID            int
}

func (m *mockCatalog) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockCatalog) CreateService(_ context.Context, svc models.Service) (models.Service, error) {
	if m.createServiceErr != nil {
		return models.Service{}, m.createServiceErr
	}
	svc.ID = m.newID("svc")
	m.services = append(m.services, svc)
	return svc, nil
}

func (m *mockCatalog) UpdateService(_ context.Context, svc models.Service) error {
	for i, s := range m.services {
		if s.ID == svc.ID {
			m.services[i] = svc
			return nil
		}
	}
	return errors.New("service not found")
}

func (m *mockCatalog) DeleteService(_ context.Context, id string) error {
	m.deletedServices = append(m.deletedServices, id)
	for i, s := range m.services {
		if s.ID == id {
			m.services = append(m.services[:i], m.services[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockCatalog) ListServices(_ context.Context, tenantID string) ([]models.Service, error) {
	var out []models.Service
	for _, s := range m.services {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockCatalog) ListServicesByCategory(_ context.Context, categoryID string) ([]models.Service, error) {
	var out []models.Service
	for _, s := range m.services {
		if s.CategoryID == categoryID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockCatalog) CreateCategory(_ context.Context, cat models.Category) (models.Category, error) {
	cat.ID = m.newID("cat")
	m.categories = append(m.categories, cat)
	return cat, nil
}

func (m *mockCatalog) UpdateCategory(_ context.Context, cat models.Category) error {
	if m.updateCategoryErr != nil {
		return m.updateCategoryErr
	}
	for i, c := range m.categories {
		if c.ID == cat.ID {
			m.categories[i] = cat
			return nil
		}
	}
	return errors.New("category not found")
}

func (m *mockCatalog) DeleteCategory(_ context.Context, id string) error {
	m.deletedCategories = append(m.deletedCategories, id)
	for i, c := range m.categories {
		if c.ID == id {
			m.categories = append(m.categories[:i], m.categories[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockCatalog) GetCategory(_ context.Context, id string) (*models.Category, error) {
	for _, c := range m.categories {
		if c.ID == id {
			cat := c
			return &cat, nil
		}
	}
	return nil, nil
}

func (m *mockCatalog) ListCategories(_ context.Context, tenantID string) ([]models.Category, error) {
	var out []models.Category
	for _, c := range m.categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func catalogEngine(t *testing.T, catalog *mockCatalog) (*engine.Engine, *recordingEmitter) {
	t.Helper()
	emitter := &recordingEmitter{}
	e := engine.New()
	for _, f := range CatalogFlows(Deps{Catalog: catalog, Events: emitter}) {
		e.RegisterFlow(f)
	}
	return e, emitter
}

func serviceMutation(op models.CatalogOperation, svc models.Service) models.FlowContext {
	return models.FlowContext{
		Tenant:  &models.Tenant{ID: svc.TenantID},
		Catalog: &models.CatalogMutation{Operation: op, Service: &svc},
	}
}

func categoryMutation(op models.CatalogOperation, cat models.Category) models.FlowContext {
	return models.FlowContext{
		Tenant:  &models.Tenant{ID: cat.TenantID},
		Catalog: &models.CatalogMutation{Operation: op, Category: &cat},
	}
}

func TestServiceCreateFlow(t *testing.T) {
	catalog := &mockCatalog{}
	e, emitter := catalogEngine(t, catalog)

	fc := serviceMutation(models.CatalogOperationCreate, models.Service{
		TenantID:        "ten-1",
		Name:            "Deep Tissue Massage",
		DurationMinutes: 60,
		Price:           120,
		IsActive:        true,
	})
	final, err := e.ExecuteFlow(context.Background(), FlowServiceCreate, fc)
	if err != nil {
		t.Fatalf("ExecuteFlow() error = %v", err)
	}
	if final.Catalog.Service.ID == "" {
		t.Error("created service has no ID")
	}
	if len(catalog.services) != 1 {
		t.Fatalf("stored services = %d, want 1", len(catalog.services))
	}
	if len(emitter.events) != 1 || emitter.events[0] != models.EventCatalogUpdated {
		t.Errorf("emitted events = %v, want [catalog.updated]", emitter.events)
	}
}

func TestServiceCreateDuplicateName(t *testing.T) {
	catalog := &mockCatalog{services: []models.Service{
		{ID: "svc-9", TenantID: "ten-1", Name: "Deep Tissue Massage", DurationMinutes: 60, IsActive: true},
	}}
	e, _ := catalogEngine(t, catalog)

	// Case-insensitive: differing case is still a duplicate.
	fc := serviceMutation(models.CatalogOperationCreate, models.Service{
		TenantID:        "ten-1",
		Name:            "deep tissue massage",
		DurationMinutes: 30,
		Price:           80,
	})
	_, err := e.ExecuteFlow(context.Background(), FlowServiceCreate, fc)

	var dup *models.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("ExecuteFlow() error = %v, want DuplicateNameError", err)
	}
	if len(catalog.services) != 1 {
		t.Errorf("stored services = %d, want 1 (no new record)", len(catalog.services))
	}
}

func TestServiceCreateDuplicateNameOtherTenantAllowed(t *testing.T) {
	catalog := &mockCatalog{services: []models.Service{
		{ID: "svc-9", TenantID: "ten-other", Name: "Deep Tissue Massage", DurationMinutes: 60},
	}}
	e, _ := catalogEngine(t, catalog)

	fc := serviceMutation(models.CatalogOperationCreate, models.Service{
		TenantID:        "ten-1",
		Name:            "Deep Tissue Massage",
		DurationMinutes: 60,
		Price:           120,
	})
	if _, err := e.ExecuteFlow(context.Background(), FlowServiceCreate, fc); err != nil {
		t.Fatalf("ExecuteFlow() error = %v, duplicates are scoped per tenant", err)
	}
}

func TestServiceUpdateKeepingOwnNameAllowed(t *testing.T) {
	catalog := &mockCatalog{services: []models.Service{
		{ID: "svc-1", TenantID: "ten-1", Name: "Deep Tissue Massage", DurationMinutes: 60, Price: 120},
	}}
	e, _ := catalogEngine(t, catalog)

	fc := serviceMutation(models.CatalogOperationUpdate, models.Service{
		ID:              "svc-1",
		TenantID:        "ten-1",
		Name:            "Deep Tissue Massage",
		DurationMinutes: 90,
		Price:           150,
	})
	if _, err := e.ExecuteFlow(context.Background(), FlowServiceUpdate, fc); err != nil {
		t.Fatalf("ExecuteFlow() error = %v, updating a record under its own name must pass", err)
	}
	if catalog.services[0].DurationMinutes != 90 {
		t.Errorf("duration after update = %d, want 90", catalog.services[0].DurationMinutes)
	}
}

func TestServiceCreateInvalidDuration(t *testing.T) {
	e, _ := catalogEngine(t, &mockCatalog{})

	fc := serviceMutation(models.CatalogOperationCreate, models.Service{
		TenantID:        "ten-1",
		Name:            "Quick Chat",
		DurationMinutes: 5, // below the minimum
	})
	_, err := e.ExecuteFlow(context.Background(), FlowServiceCreate, fc)
	if !errors.Is(err, models.ErrInvalidDuration) {
		t.Fatalf("ExecuteFlow() error = %v, want ErrInvalidDuration", err)
	}
}

func TestServiceToggleStatus(t *testing.T) {
	catalog := &mockCatalog{services: []models.Service{
		{ID: "svc-1", TenantID: "ten-1", Name: "Facial", DurationMinutes: 45, IsActive: true},
	}}
	e, _ := catalogEngine(t, catalog)

	fc := serviceMutation(models.CatalogOperationToggleStatus, catalog.services[0])
	final, err := e.ExecuteFlow(context.Background(), FlowServiceToggleStatus, fc)
	if err != nil {
		t.Fatalf("ExecuteFlow() error = %v", err)
	}
	if final.Catalog.Service.IsActive {
		t.Error("service still active after toggle")
	}
	if catalog.services[0].IsActive {
		t.Error("stored service still active after toggle")
	}
}

func TestServiceDeleteRequiresID(t *testing.T) {
	e, _ := catalogEngine(t, &mockCatalog{})

	fc := serviceMutation(models.CatalogOperationDelete, models.Service{TenantID: "ten-1"})
	_, err := e.ExecuteFlow(context.Background(), FlowServiceDelete, fc)

	var valErr *models.StepValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("ExecuteFlow() error = %v, want StepValidationError", err)
	}
	if !errors.Is(valErr.Err, models.ErrMissingRecordID) {
		t.Errorf("precondition error = %v, want ErrMissingRecordID", valErr.Err)
	}
}

func TestCategoryDeleteBlockedByActiveServices(t *testing.T) {
	catalog := &mockCatalog{
		categories: []models.Category{{ID: "cat-1", TenantID: "ten-1", Name: "Massage", IsActive: true}},
		services: []models.Service{
			{ID: "svc-1", TenantID: "ten-1", CategoryID: "cat-1", Name: "Swedish", DurationMinutes: 60, IsActive: true},
			{ID: "svc-2", TenantID: "ten-1", CategoryID: "cat-1", Name: "Hot Stone", DurationMinutes: 60, IsActive: false},
		},
	}
	e, _ := catalogEngine(t, catalog)

	fc := categoryMutation(models.CatalogOperationDelete, catalog.categories[0])
	_, err := e.ExecuteFlow(context.Background(), FlowCategoryDelete, fc)

	var dep *models.DependencyExistsError
	if !errors.As(err, &dep) {
		t.Fatalf("ExecuteFlow() error = %v, want DependencyExistsError", err)
	}
	if dep.Count != 1 {
		t.Errorf("dependent count = %d, want 1 (inactive services do not block)", dep.Count)
	}
	if len(catalog.deletedCategories) != 0 {
		t.Errorf("deleted categories = %v, want none", catalog.deletedCategories)
	}
}

func TestCategoryDeleteWithOnlyInactiveServices(t *testing.T) {
	catalog := &mockCatalog{
		categories: []models.Category{{ID: "cat-1", TenantID: "ten-1", Name: "Massage", IsActive: true}},
		services: []models.Service{
			{ID: "svc-2", TenantID: "ten-1", CategoryID: "cat-1", Name: "Hot Stone", DurationMinutes: 60, IsActive: false},
		},
	}
	e, _ := catalogEngine(t, catalog)

	fc := categoryMutation(models.CatalogOperationDelete, catalog.categories[0])
	if _, err := e.ExecuteFlow(context.Background(), FlowCategoryDelete, fc); err != nil {
		t.Fatalf("ExecuteFlow() error = %v", err)
	}
	if len(catalog.deletedCategories) != 1 || catalog.deletedCategories[0] != "cat-1" {
		t.Errorf("deleted categories = %v, want [cat-1]", catalog.deletedCategories)
	}
}

func TestCategoryCreateWithInvalidParent(t *testing.T) {
	catalog := &mockCatalog{categories: []models.Category{
		{ID: "cat-9", TenantID: "ten-1", Name: "Retired", IsActive: false},
	}}
	e, _ := catalogEngine(t, catalog)

	for _, parentID := range []string{"cat-missing", "cat-9"} {
		fc := categoryMutation(models.CatalogOperationCreate, models.Category{
			TenantID: "ten-1",
			ParentID: parentID,
			Name:     "Sub",
		})
		_, err := e.ExecuteFlow(context.Background(), FlowCategoryCreate, fc)
		if !errors.Is(err, models.ErrParentCategoryInvalid) {
			t.Errorf("parent %q: error = %v, want ErrParentCategoryInvalid", parentID, err)
		}
	}
}

func TestCategoryCreateWithActiveParent(t *testing.T) {
	catalog := &mockCatalog{categories: []models.Category{
		{ID: "cat-1", TenantID: "ten-1", Name: "Massage", IsActive: true},
	}}
	e, _ := catalogEngine(t, catalog)

	fc := categoryMutation(models.CatalogOperationCreate, models.Category{
		TenantID: "ten-1",
		ParentID: "cat-1",
		Name:     "Aromatherapy",
		IsActive: true,
	})
	final, err := e.ExecuteFlow(context.Background(), FlowCategoryCreate, fc)
	if err != nil {
		t.Fatalf("ExecuteFlow() error = %v", err)
	}
	if final.Catalog.Category.ID == "" {
		t.Error("created category has no ID")
	}
}

func TestCategoryToggleRollbackNotTriggeredOnUpdateFailure(t *testing.T) {
	catalog := &mockCatalog{
		categories:        []models.Category{{ID: "cat-1", TenantID: "ten-1", Name: "Massage", IsActive: true}},
		updateCategoryErr: errors.New("backend unavailable"),
	}
	e, _ := catalogEngine(t, catalog)

	fc := categoryMutation(models.CatalogOperationToggleStatus, catalog.categories[0])
	_, err := e.ExecuteFlow(context.Background(), FlowCategoryToggleStatus, fc)
	if err == nil {
		t.Fatal("ExecuteFlow() error = nil, want persist failure")
	}
	// Toggle has no compensation; nothing must be deleted.
	if len(catalog.deletedCategories) != 0 {
		t.Errorf("deleted categories = %v, want none", catalog.deletedCategories)
	}
}

func TestServiceCreateRollbackDeletesRecord(t *testing.T) {
	// Compose the real persist step with a step that always fails, so the
	// engine compensates the completed create by deleting the record.
	catalog := &mockCatalog{}
	deps := Deps{Catalog: catalog, Events: &recordingEmitter{}}
	e := engine.New()
	e.RegisterFlow(&engine.Flow{
		Name: "service_create_then_fail",
		Steps: []engine.Step{
			persistStep(deps, kindService),
			{
				Name: "always_fails",
				Action: func(_ context.Context, fc models.FlowContext) (models.FlowContext, error) {
					return fc, errors.New("downstream rejected")
				},
			},
		},
	})

	fc := serviceMutation(models.CatalogOperationCreate, models.Service{
		TenantID:        "ten-1",
		Name:            "Facial",
		DurationMinutes: 45,
		Price:           60,
	})
	_, err := e.ExecuteFlow(context.Background(), "service_create_then_fail", fc)
	if err == nil {
		t.Fatal("ExecuteFlow() error = nil, want downstream failure")
	}
	if len(catalog.deletedServices) != 1 {
		t.Fatalf("deleted services = %v, want the rolled-back create", catalog.deletedServices)
	}
	if len(catalog.services) != 0 {
		t.Errorf("stored services = %d, want 0 after compensation", len(catalog.services))
	}
}

func TestMissingCatalogPayloadRejected(t *testing.T) {
	e, _ := catalogEngine(t, &mockCatalog{})

	_, err := e.ExecuteFlow(context.Background(), FlowServiceCreate, models.FlowContext{})

	var valErr *models.StepValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("ExecuteFlow() error = %v, want StepValidationError", err)
	}
	if !errors.Is(valErr.Err, models.ErrMissingCatalogData) {
		t.Errorf("precondition error = %v, want ErrMissingCatalogData", valErr.Err)
	}
}
