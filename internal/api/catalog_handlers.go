// Catalog endpoints come in two layers. /services and /categories are the
// plain persistence surface the flow steps call through the backend client;
// they apply no business rules beyond field validation. /catalog/... routes
// run the catalog flows, which add duplicate-name, parent-category and
// dependent-service checks before persisting.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ClinicPipe/ClinicPipe/internal/flow"
	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// servicesHandler handles POST /services and GET /services?tenant_id=...
func (s *Server) servicesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.servicesHandler: processing request", "method", r.Method)
	switch r.Method {
	case http.MethodPost:
		var svc models.Service
		if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := svc.Validate(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		created, err := s.st.CreateService(r.Context(), svc)
		if err != nil {
			slog.Error("Server.servicesHandler: create failed", "tenant", svc.TenantID, "error", err)
			writeFlowError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusCreated, models.Success(created))
	case http.MethodGet:
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant_id is required"))
			return
		}
		services, err := s.st.ListServices(r.Context(), tenantID)
		if err != nil {
			slog.Error("Server.servicesHandler: listing failed", "tenant", tenantID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list services"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(services))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// serviceByIDHandler handles GET, PUT and DELETE on /services/{id}.
func (s *Server) serviceByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := strings.TrimPrefix(r.URL.Path, "/services/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown service endpoint"))
		return
	}
	slog.Debug("Server.serviceByIDHandler: processing request", "method", r.Method, "id", id)

	switch r.Method {
	case http.MethodGet:
		svc, err := s.st.GetService(r.Context(), id)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		if svc == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Service not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(svc))
	case http.MethodPut, http.MethodPatch:
		var svc models.Service
		if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		svc.ID = id
		if err := svc.Validate(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if err := s.st.UpdateService(r.Context(), svc); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Service updated", nil))
	case http.MethodDelete:
		if err := s.st.DeleteService(r.Context(), id); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Service deleted", nil))
	default:
		w.Header().Set("Allow", "GET, PUT, PATCH, DELETE")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// categoriesHandler handles POST /categories and GET /categories?tenant_id=...
func (s *Server) categoriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.categoriesHandler: processing request", "method", r.Method)
	switch r.Method {
	case http.MethodPost:
		var cat models.Category
		if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := cat.Validate(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		created, err := s.st.CreateCategory(r.Context(), cat)
		if err != nil {
			slog.Error("Server.categoriesHandler: create failed", "tenant", cat.TenantID, "error", err)
			writeFlowError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusCreated, models.Success(created))
	case http.MethodGet:
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("tenant_id is required"))
			return
		}
		categories, err := s.st.ListCategories(r.Context(), tenantID)
		if err != nil {
			slog.Error("Server.categoriesHandler: listing failed", "tenant", tenantID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list categories"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(categories))
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// categoryByIDHandler handles /categories/{id} and /categories/{id}/services.
func (s *Server) categoryByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/categories/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown category endpoint"))
		return
	}
	id := segments[0]
	slog.Debug("Server.categoryByIDHandler: processing request", "method", r.Method, "id", id, "path", r.URL.Path)

	if len(segments) == 2 && segments[1] == "services" {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		services, err := s.st.ListServicesByCategory(r.Context(), id)
		if err != nil {
			slog.Error("Server.categoryByIDHandler: listing services failed", "category", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list services"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(services))
		return
	}
	if len(segments) != 1 {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown category endpoint"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		cat, err := s.st.GetCategory(r.Context(), id)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		if cat == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Category not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(cat))
	case http.MethodPut, http.MethodPatch:
		var cat models.Category
		if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		cat.ID = id
		if err := cat.Validate(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if err := s.st.UpdateCategory(r.Context(), cat); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Category updated", nil))
	case http.MethodDelete:
		if err := s.st.DeleteCategory(r.Context(), id); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Category deleted", nil))
	default:
		w.Header().Set("Allow", "GET, PUT, PATCH, DELETE")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// catalogServicesFlowHandler handles POST /catalog/services.
func (s *Server) catalogServicesFlowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var svc models.Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	s.runServiceFlow(w, r, flow.FlowServiceCreate, models.CatalogOperationCreate, &svc, http.StatusCreated)
}

// catalogServiceByIDFlowHandler handles PUT, DELETE and POST .../toggle under
// /catalog/services/{id}.
func (s *Server) catalogServiceByIDFlowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/catalog/services/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown catalog endpoint"))
		return
	}
	id := segments[0]

	if len(segments) == 2 && segments[1] == "toggle" {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		svc, err := s.st.GetService(r.Context(), id)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		if svc == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Service not found"))
			return
		}
		s.runServiceFlow(w, r, flow.FlowServiceToggleStatus, models.CatalogOperationToggleStatus, svc, http.StatusOK)
		return
	}
	if len(segments) != 1 {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown catalog endpoint"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var svc models.Service
		if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		svc.ID = id
		s.runServiceFlow(w, r, flow.FlowServiceUpdate, models.CatalogOperationUpdate, &svc, http.StatusOK)
	case http.MethodDelete:
		svc, err := s.st.GetService(r.Context(), id)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		if svc == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Service not found"))
			return
		}
		s.runServiceFlow(w, r, flow.FlowServiceDelete, models.CatalogOperationDelete, svc, http.StatusOK)
	default:
		w.Header().Set("Allow", "PUT, DELETE")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) runServiceFlow(w http.ResponseWriter, r *http.Request, flowName string, op models.CatalogOperation, svc *models.Service, okStatus int) {
	fc := models.FlowContext{
		Tenant:  &models.Tenant{ID: svc.TenantID},
		Catalog: &models.CatalogMutation{Operation: op, Service: svc},
	}
	final, err := s.engine.ExecuteFlow(r.Context(), flowName, fc)
	if err != nil {
		slog.Warn("Server.runServiceFlow: flow failed", "flow", flowName, "error", err)
		writeFlowError(w, err)
		return
	}
	writeJSONResponse(w, okStatus, models.Success(final.Catalog.Service))
}

// catalogCategoriesFlowHandler handles POST /catalog/categories.
func (s *Server) catalogCategoriesFlowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var cat models.Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	s.runCategoryFlow(w, r, flow.FlowCategoryCreate, models.CatalogOperationCreate, &cat, http.StatusCreated)
}

// catalogCategoryByIDFlowHandler handles PUT, DELETE and POST .../toggle
// under /catalog/categories/{id}.
func (s *Server) catalogCategoryByIDFlowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	path := strings.TrimPrefix(r.URL.Path, "/catalog/categories/")
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown catalog endpoint"))
		return
	}
	id := segments[0]

	if len(segments) == 2 && segments[1] == "toggle" {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		cat, err := s.st.GetCategory(r.Context(), id)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		if cat == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Category not found"))
			return
		}
		s.runCategoryFlow(w, r, flow.FlowCategoryToggleStatus, models.CatalogOperationToggleStatus, cat, http.StatusOK)
		return
	}
	if len(segments) != 1 {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown catalog endpoint"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var cat models.Category
		if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		cat.ID = id
		s.runCategoryFlow(w, r, flow.FlowCategoryUpdate, models.CatalogOperationUpdate, &cat, http.StatusOK)
	case http.MethodDelete:
		cat, err := s.st.GetCategory(r.Context(), id)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		if cat == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Category not found"))
			return
		}
		s.runCategoryFlow(w, r, flow.FlowCategoryDelete, models.CatalogOperationDelete, cat, http.StatusOK)
	default:
		w.Header().Set("Allow", "PUT, DELETE")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

func (s *Server) runCategoryFlow(w http.ResponseWriter, r *http.Request, flowName string, op models.CatalogOperation, cat *models.Category, okStatus int) {
	fc := models.FlowContext{
		Tenant:  &models.Tenant{ID: cat.TenantID},
		Catalog: &models.CatalogMutation{Operation: op, Category: cat},
	}
	final, err := s.engine.ExecuteFlow(r.Context(), flowName, fc)
	if err != nil {
		slog.Warn("Server.runCategoryFlow: flow failed", "flow", flowName, "error", err)
		writeFlowError(w, err)
		return
	}
	writeJSONResponse(w, okStatus, models.Success(final.Catalog.Category))
}
