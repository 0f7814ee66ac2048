package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	api "github.com/cortap/cortap-rpt/api/v1"
)

// NewRequestValidator checks requests against the embedded OpenAPI document
// before they reach the handlers.
func NewRequestValidator() (func(http.Handler) http.Handler, error) {
	swagger, err := api.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}
	// Skip server name validation
	swagger.Servers = nil

	return oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapimiddleware.Options{
		ErrorHandler: oapiErrorHandler,
	}), nil
}

func oapiErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": fmt.Sprintf("API Error: %s", message)})
}
