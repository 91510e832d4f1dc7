// Package api provides HTTP response utilities for ClinicPipe.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
	"github.com/ClinicPipe/ClinicPipe/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		// Use pre-marshaled fallback response - if this fails, we have bigger problems
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	// Write headers and response only after successful JSON marshaling
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeFlowError maps a flow or store failure onto an HTTP status and writes
// the error envelope. Validation failures are the caller's fault; conflicts
// (occupied slot, duplicate name, dependent services) are 409s; collaborator
// failures surface as 502 so clients can tell them from local errors.
func writeFlowError(w http.ResponseWriter, err error) {
	var (
		valErr  *models.StepValidationError
		slotErr *models.SlotUnavailableError
		dupErr  *models.DuplicateNameError
		depErr  *models.DependencyExistsError
		perErr  *models.PersistenceError
		nfErr   *models.FlowNotFoundError
	)
	switch {
	case errors.As(err, &valErr):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(valErr.Err.Error()))
	case errors.As(err, &slotErr):
		writeJSONResponse(w, http.StatusConflict, models.Error(slotErr.Error()))
	case errors.As(err, &dupErr):
		writeJSONResponse(w, http.StatusConflict, models.Error(dupErr.Error()))
	case errors.As(err, &depErr):
		writeJSONResponse(w, http.StatusConflict, models.Error(depErr.Error()))
	case errors.Is(err, store.ErrSlotConflict):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, store.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Record not found"))
	case errors.As(err, &perErr):
		writeJSONResponse(w, http.StatusBadGateway, models.Error(perErr.Error()))
	case errors.As(err, &nfErr):
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(nfErr.Error()))
	case isFieldRuleError(err):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}

// isFieldRuleError reports whether the failure is one of the field-rule
// sentinels, which steps surface from their actions rather than their
// preconditions.
func isFieldRuleError(err error) bool {
	for _, sentinel := range []error{
		models.ErrEmptyName,
		models.ErrNameTooLong,
		models.ErrInvalidDuration,
		models.ErrNegativePrice,
		models.ErrMissingTenant,
		models.ErrParentCategoryInvalid,
		models.ErrInvalidPaymentAmount,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
