package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/openfacet/facet/internal"
)

// handleDefinitions handles POST /api/v1/definitions. The body is a YAML
// or JSON definition document; groups and attributes it names are created
// and choice labels are unioned into their groups. Re-posting an
// unchanged document is a no-op.
func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	doc, err := internal.ParseDefinition(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid definition document: %v", err))
		return
	}

	result, err := internal.ApplyDefinitions(r.Context(), s.engine, doc)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}
