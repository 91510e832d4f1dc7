// Catalog mutation flows: service and category create/update/delete/toggle,
// composed from shared steps. Validation and duplicate checks run before the
// persist step dispatches on the operation discriminator; category deletion is
// blocked (never cascaded) while active services still reference it.

package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ClinicPipe/ClinicPipe/internal/engine"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// Step names shared by the catalog flows.
const (
	StepValidateFields         = "validate_fields"
	StepCheckDuplicateName     = "check_duplicate_name"
	StepValidateParentCategory = "validate_parent_category"
	StepCheckDependentServices = "check_dependent_services"
	StepPersist                = "persist"
	StepEmitEvent              = "emit_event"
	StepUpdateDependencies     = "update_dependencies"
)

// catalogKind distinguishes the two flow families sharing these steps.
type catalogKind int

const (
	kindService catalogKind = iota
	kindCategory
)

// CatalogFlows builds all eight catalog flows.
func CatalogFlows(deps Deps) []*engine.Flow {
	return []*engine.Flow{
		catalogFlow(deps, FlowServiceCreate, kindService, models.CatalogOperationCreate),
		catalogFlow(deps, FlowServiceUpdate, kindService, models.CatalogOperationUpdate),
		catalogFlow(deps, FlowServiceDelete, kindService, models.CatalogOperationDelete),
		catalogFlow(deps, FlowServiceToggleStatus, kindService, models.CatalogOperationToggleStatus),
		catalogFlow(deps, FlowCategoryCreate, kindCategory, models.CatalogOperationCreate),
		catalogFlow(deps, FlowCategoryUpdate, kindCategory, models.CatalogOperationUpdate),
		catalogFlow(deps, FlowCategoryDelete, kindCategory, models.CatalogOperationDelete),
		catalogFlow(deps, FlowCategoryToggleStatus, kindCategory, models.CatalogOperationToggleStatus),
	}
}

// catalogFlow assembles the step sequence for one flow name. Create and
// update run the full validation chain; delete adds the dependent-services
// check (categories only); toggle skips name checks entirely.
func catalogFlow(deps Deps, name string, kind catalogKind, op models.CatalogOperation) *engine.Flow {
	steps := []engine.Step{validateFieldsStep(kind, op)}

	if op == models.CatalogOperationCreate || op == models.CatalogOperationUpdate {
		steps = append(steps, checkDuplicateNameStep(deps, kind))
		if kind == kindCategory {
			steps = append(steps, validateParentCategoryStep(deps))
		}
	}
	if op == models.CatalogOperationDelete && kind == kindCategory {
		steps = append(steps, checkDependentServicesStep(deps))
	}

	steps = append(steps,
		persistStep(deps, kind),
		emitEventStep(deps),
		updateDependenciesStep(),
	)
	return &engine.Flow{Name: name, Steps: steps}
}

// catalogPrecondition checks the structural shape every catalog flow needs:
// a mutation with the right record kind, the expected operation, and an id
// for operations targeting an existing record.
func catalogPrecondition(fc models.FlowContext, kind catalogKind, op models.CatalogOperation) error {
	if fc.Catalog == nil {
		return models.ErrMissingCatalogData
	}
	if fc.Catalog.Operation != op {
		return models.ErrInvalidCatalogOp
	}
	switch kind {
	case kindService:
		if fc.Catalog.Service == nil {
			return models.ErrMissingCatalogData
		}
		if op != models.CatalogOperationCreate && fc.Catalog.Service.ID == "" {
			return models.ErrMissingRecordID
		}
	case kindCategory:
		if fc.Catalog.Category == nil {
			return models.ErrMissingCatalogData
		}
		if op != models.CatalogOperationCreate && fc.Catalog.Category.ID == "" {
			return models.ErrMissingRecordID
		}
	}
	return nil
}

func validateFieldsStep(kind catalogKind, op models.CatalogOperation) engine.Step {
	return engine.Step{
		Name: StepValidateFields,
		Validate: func(fc models.FlowContext) error {
			return catalogPrecondition(fc, kind, op)
		},
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			// Field rules apply to the mutations that write fields; delete
			// and toggle only need the record id checked above.
			if op != models.CatalogOperationCreate && op != models.CatalogOperationUpdate {
				return fc, nil
			}
			if kind == kindService {
				return fc, fc.Catalog.Service.Validate()
			}
			return fc, fc.Catalog.Category.Validate()
		},
	}
}

func checkDuplicateNameStep(deps Deps, kind catalogKind) engine.Step {
	return engine.Step{
		Name: StepCheckDuplicateName,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			if kind == kindService {
				svc := fc.Catalog.Service
				existing, err := deps.Catalog.ListServices(ctx, svc.TenantID)
				if err != nil {
					return fc, err
				}
				for _, other := range existing {
					// Renaming a record to its current name is not a duplicate.
					if other.ID != svc.ID && strings.EqualFold(other.Name, svc.Name) {
						return fc, &models.DuplicateNameError{Name: svc.Name, TenantID: svc.TenantID}
					}
				}
				return fc, nil
			}
			cat := fc.Catalog.Category
			existing, err := deps.Catalog.ListCategories(ctx, cat.TenantID)
			if err != nil {
				return fc, err
			}
			for _, other := range existing {
				if other.ID != cat.ID && strings.EqualFold(other.Name, cat.Name) {
					return fc, &models.DuplicateNameError{Name: cat.Name, TenantID: cat.TenantID}
				}
			}
			return fc, nil
		},
	}
}

func validateParentCategoryStep(deps Deps) engine.Step {
	return engine.Step{
		Name: StepValidateParentCategory,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			parentID := fc.Catalog.Category.ParentID
			if parentID == "" {
				return fc, nil
			}
			parent, err := deps.Catalog.GetCategory(ctx, parentID)
			if err != nil {
				return fc, err
			}
			if parent == nil || !parent.IsActive {
				return fc, models.ErrParentCategoryInvalid
			}
			return fc, nil
		},
	}
}

func checkDependentServicesStep(deps Deps) engine.Step {
	return engine.Step{
		Name: StepCheckDependentServices,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			cat := fc.Catalog.Category
			services, err := deps.Catalog.ListServicesByCategory(ctx, cat.ID)
			if err != nil {
				return fc, err
			}
			active := 0
			for _, svc := range services {
				if svc.IsActive {
					active++
				}
			}
			if active > 0 {
				return fc, &models.DependencyExistsError{CategoryID: cat.ID, Count: active}
			}
			return fc, nil
		},
	}
}

func persistStep(deps Deps, kind catalogKind) engine.Step {
	return engine.Step{
		Name: StepPersist,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			if kind == kindService {
				return persistService(ctx, deps, fc)
			}
			return persistCategory(ctx, deps, fc)
		},
		Rollback: func(ctx context.Context, fc models.FlowContext) error {
			// Only creation leaves something to compensate; updates and
			// deletes have no captured prior state to restore.
			if fc.Catalog == nil || fc.Catalog.Operation != models.CatalogOperationCreate {
				return nil
			}
			if kind == kindService && fc.Catalog.Service != nil && fc.Catalog.Service.ID != "" {
				return deps.Catalog.DeleteService(ctx, fc.Catalog.Service.ID)
			}
			if kind == kindCategory && fc.Catalog.Category != nil && fc.Catalog.Category.ID != "" {
				return deps.Catalog.DeleteCategory(ctx, fc.Catalog.Category.ID)
			}
			return nil
		},
	}
}

func persistService(ctx context.Context, deps Deps, fc models.FlowContext) (models.FlowContext, error) {
	svc := fc.Catalog.Service
	switch fc.Catalog.Operation {
	case models.CatalogOperationCreate:
		created, err := deps.Catalog.CreateService(ctx, *svc)
		if err != nil {
			return fc, err
		}
		fc.Catalog.Service = &created
	case models.CatalogOperationUpdate:
		if err := deps.Catalog.UpdateService(ctx, *svc); err != nil {
			return fc, err
		}
	case models.CatalogOperationDelete:
		if err := deps.Catalog.DeleteService(ctx, svc.ID); err != nil {
			return fc, err
		}
	case models.CatalogOperationToggleStatus:
		toggled := *svc
		toggled.IsActive = !svc.IsActive
		if err := deps.Catalog.UpdateService(ctx, toggled); err != nil {
			return fc, err
		}
		fc.Catalog.Service = &toggled
	default:
		return fc, models.ErrInvalidCatalogOp
	}
	slog.Info("catalog.persist: service mutation applied", "operation", fc.Catalog.Operation, "id", fc.Catalog.Service.ID)
	return fc, nil
}

func persistCategory(ctx context.Context, deps Deps, fc models.FlowContext) (models.FlowContext, error) {
	cat := fc.Catalog.Category
	switch fc.Catalog.Operation {
	case models.CatalogOperationCreate:
		created, err := deps.Catalog.CreateCategory(ctx, *cat)
		if err != nil {
			return fc, err
		}
		fc.Catalog.Category = &created
	case models.CatalogOperationUpdate:
		if err := deps.Catalog.UpdateCategory(ctx, *cat); err != nil {
			return fc, err
		}
	case models.CatalogOperationDelete:
		if err := deps.Catalog.DeleteCategory(ctx, cat.ID); err != nil {
			return fc, err
		}
	case models.CatalogOperationToggleStatus:
		toggled := *cat
		toggled.IsActive = !cat.IsActive
		if err := deps.Catalog.UpdateCategory(ctx, toggled); err != nil {
			return fc, err
		}
		fc.Catalog.Category = &toggled
	default:
		return fc, models.ErrInvalidCatalogOp
	}
	slog.Info("catalog.persist: category mutation applied", "operation", fc.Catalog.Operation, "id", fc.Catalog.Category.ID)
	return fc, nil
}

func emitEventStep(deps Deps) engine.Step {
	return engine.Step{
		Name: StepEmitEvent,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			deps.Events.Emit(models.EventCatalogUpdated, fc)
			return fc, nil
		},
	}
}

// updateDependenciesStep is the placeholder hook where cache or search-index
// invalidation will plug in once those exist.
func updateDependenciesStep() engine.Step {
	return engine.Step{
		Name: StepUpdateDependencies,
		Action: func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error) {
			slog.Debug("catalog.update_dependencies: no dependents to refresh")
			return fc, nil
		},
	}
}
