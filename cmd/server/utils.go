package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	facet "github.com/openfacet/facet"
)

// trimRoute strips prefix from path and returns the remaining segments.
// A path equal to the prefix yields nil.
func trimRoute(path, prefix string) []string {
	path = strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// parseEntityPath parses /api/v1/entities/{type}/{id}[/...] into an entity
// reference and the remaining segments.
func parseEntityPath(path string) (facet.EntityRef, []string, error) {
	parts := trimRoute(path, "/api/v1/entities/")
	if len(parts) < 2 {
		return facet.EntityRef{}, nil, fmt.Errorf("expected /api/v1/entities/{type}/{id}")
	}
	if parts[0] == "" {
		return facet.EntityRef{}, nil, fmt.Errorf("entity type is required")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return facet.EntityRef{}, nil, fmt.Errorf("invalid entity id %q: %w", parts[1], err)
	}
	return facet.EntityRef{Type: parts[0], ID: id}, parts[2:], nil
}

// payloadJSON renders a stored payload as its natural JSON value. Dates
// become 2006-01-02 strings and enum choices their label; object
// references keep both the content type and the row id.
func payloadJSON(p facet.Payload) any {
	switch v := p.(type) {
	case facet.Text:
		return string(v)
	case facet.Float:
		return float64(v)
	case facet.Bool:
		return bool(v)
	case facet.Date:
		return v.String()
	case facet.Object:
		return facet.EntityRef(v)
	case facet.Choice:
		return v.Value
	case nil:
		return nil
	default:
		return fmt.Sprintf("%v", p)
	}
}

// nativeFromJSON adapts decoded JSON input for datatypes whose native form
// is not a JSON primitive. Object references arrive as {"type","id"} maps.
// Anything unconvertible passes through for the store to reject.
func nativeFromJSON(attr *facet.Attribute, v any) any {
	if attr.Datatype != facet.DatatypeObject {
		return v
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	typ, _ := m["type"].(string)
	idStr, _ := m["id"].(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return v
	}
	return facet.EntityRef{Type: typ, ID: id}
}

// statusForError maps engine error kinds onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case facet.IsNotFoundError(err), facet.IsUnknownAttributeError(err):
		return http.StatusNotFound
	case facet.IsConflictError(err), facet.IsUniquenessError(err):
		return http.StatusConflict
	case facet.IsTypeMismatchError(err), facet.IsInvalidChoiceError(err),
		facet.IsRequiredFieldError(err), facet.IsValidationError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// APIResponse is the standard response format
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeEngineError writes an error response with the status derived from
// the engine error kind.
func writeEngineError(w http.ResponseWriter, err error) error {
	return writeError(w, statusForError(err), err.Error())
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) error {
	return writeJSON(w, statusCode, data)
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
