package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/heyross/InvokeAI/internal/modelcache"
	"github.com/heyross/InvokeAI/internal/modelstore"
	"github.com/heyross/InvokeAI/internal/workflows"
	"github.com/heyross/InvokeAI/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFromErr maps well-known service errors to HTTP status codes.
func statusFromErr(err error) int {
	switch {
	case workflows.IsWorkflowNotFound(err),
		modelstore.IsUnknownModel(err),
		modelcache.IsModelNotFound(err):
		return http.StatusNotFound
	case modelstore.IsDuplicateModel(err),
		modelcache.IsDuplicateKey(err),
		modelcache.IsModelLocked(err):
		return http.StatusConflict
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
