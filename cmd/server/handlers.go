package main

import (
	"fmt"
	"net/http"

	facet "github.com/openfacet/facet"
)

// createAttributeRequest is the create-attribute body. EnumGroup names the
// choice group for enum attributes; it resolves to enum_group_id before
// the definition reaches the store.
type createAttributeRequest struct {
	facet.CreateAttribute
	EnumGroup string `json:"enum_group,omitempty"`
}

// createEnumGroupRequest is the create-group body. Values seeds the
// initial membership.
type createEnumGroupRequest struct {
	Name   string   `json:"name"`
	Values []string `json:"values,omitempty"`
}

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("database unreachable: %v", err))
			return
		}
	}

	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAttributes handles POST and GET /api/v1/attributes
func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateAttribute(w, r)
	case http.MethodGet:
		s.handleListAttributes(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateAttribute(w http.ResponseWriter, r *http.Request) {
	var req createAttributeRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, err := facet.ParseDatatype(string(req.Datatype)); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid datatype: %v", err))
		return
	}

	// Resolve the group name to its id for enum attributes.
	if req.EnumGroup != "" && req.EnumGroupID == nil {
		group, err := s.engine.Enums().GetGroup(r.Context(), req.EnumGroup)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		req.EnumGroupID = &group.ID
	}

	attr, err := s.engine.Attributes().Create(r.Context(), req.CreateAttribute)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, attr)
}

func (s *Server) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	attrs, err := s.engine.Attributes().List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"attributes": attrs,
		"count":      len(attrs),
	})
}

// handleAttributeBySlug handles GET and DELETE /api/v1/attributes/{slug}
func (s *Server) handleAttributeBySlug(w http.ResponseWriter, r *http.Request) {
	parts := trimRoute(r.URL.Path, "/api/v1/attributes/")
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "expected /api/v1/attributes/{slug}")
		return
	}
	slug := parts[0]

	switch r.Method {
	case http.MethodGet:
		attr, err := s.engine.Attributes().GetBySlug(r.Context(), slug)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, attr)
	case http.MethodDelete:
		if err := s.engine.Attributes().Delete(r.Context(), slug); err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"deleted": slug})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleEnumGroups handles POST /api/v1/enum-groups
func (s *Server) handleEnumGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createEnumGroupRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	group, err := s.engine.Enums().CreateGroup(r.Context(), req.Name)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if len(req.Values) > 0 {
		if err := s.engine.Enums().AddGroupValues(r.Context(), group.ID, req.Values...); err != nil {
			writeEngineError(w, err)
			return
		}
		group, err = s.engine.Enums().GetGroup(r.Context(), req.Name)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	}

	writeSuccess(w, http.StatusCreated, group)
}

// handleEnumGroupByName handles the routes under /api/v1/enum-groups/{name}:
// GET the group, POST {name}/values to union labels in, and DELETE
// {name}/values/{label} to detach one.
func (s *Server) handleEnumGroupByName(w http.ResponseWriter, r *http.Request) {
	parts := trimRoute(r.URL.Path, "/api/v1/enum-groups/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		group, err := s.engine.Enums().GetGroup(r.Context(), parts[0])
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, group)

	case len(parts) == 2 && parts[1] == "values":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req struct {
			Values []string `json:"values"`
		}
		if err := readJSONBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
			return
		}
		if len(req.Values) == 0 {
			writeError(w, http.StatusBadRequest, "values must not be empty")
			return
		}
		group, err := s.engine.Enums().GetGroup(r.Context(), parts[0])
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if err := s.engine.Enums().AddGroupValues(r.Context(), group.ID, req.Values...); err != nil {
			writeEngineError(w, err)
			return
		}
		group, err = s.engine.Enums().GetGroup(r.Context(), parts[0])
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, group)

	case len(parts) == 3 && parts[1] == "values":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		group, err := s.engine.Enums().GetGroup(r.Context(), parts[0])
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if err := s.engine.Enums().RemoveGroupValue(r.Context(), group.ID, parts[2]); err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"removed": parts[2]})

	default:
		writeError(w, http.StatusBadRequest, "expected /api/v1/enum-groups/{name}[/values[/{label}]]")
	}
}

// handleEntities routes /api/v1/entities/{type}/{id}:
//
//	GET    /api/v1/entities/{type}/{id}                 all stored values
//	DELETE /api/v1/entities/{type}/{id}                 remove all stored values
//	POST   /api/v1/entities/{type}/{id}/validate        check required fields
//	GET    /api/v1/entities/{type}/{id}/values/{slug}   one stored value
//	PUT    /api/v1/entities/{type}/{id}/values/{slug}   set one value
//	DELETE /api/v1/entities/{type}/{id}/values/{slug}   clear one value
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	ref, rest, err := parseEntityPath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}

	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			s.handleEntityValues(w, r, ref)
		case http.MethodDelete:
			s.handleEntityDelete(w, r, ref)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(rest) == 1 && rest[0] == "validate":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleEntityValidate(w, r, ref)
	case len(rest) == 2 && rest[0] == "values":
		s.handleEntityValue(w, r, ref, rest[1])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleEntityValues handles GET /api/v1/entities/{type}/{id}
func (s *Server) handleEntityValues(w http.ResponseWriter, r *http.Request, ref facet.EntityRef) {
	attrs, err := s.engine.Attributes().List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	entity := s.engine.Bind(ref, attrs)
	stored, err := entity.AsMap(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	values := make(map[string]any, len(stored))
	for slug, payload := range stored {
		values[slug] = payloadJSON(payload)
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"entity": ref,
		"values": values,
	})
}

// handleEntityDelete handles DELETE /api/v1/entities/{type}/{id}
func (s *Server) handleEntityDelete(w http.ResponseWriter, r *http.Request, ref facet.EntityRef) {
	deleted, err := s.engine.Values().DeleteForEntity(r.Context(), ref)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"entity":  ref,
		"deleted": deleted,
	})
}

// handleEntityValidate handles POST /api/v1/entities/{type}/{id}/validate
func (s *Server) handleEntityValidate(w http.ResponseWriter, r *http.Request, ref facet.EntityRef) {
	attrs, err := s.engine.Attributes().List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	entity := s.engine.Bind(ref, attrs)
	if err := entity.Validate(r.Context()); err != nil {
		if ve, ok := err.(*facet.ValidationError); ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"valid":      false,
				"violations": ve.Violations,
			})
			return
		}
		writeEngineError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"valid": true})
}

// handleEntityValue handles the single-value routes.
func (s *Server) handleEntityValue(w http.ResponseWriter, r *http.Request, ref facet.EntityRef, slug string) {
	attr, err := s.engine.Attributes().GetBySlug(r.Context(), slug)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		payload, ok, err := s.engine.Values().Get(r.Context(), ref, attr)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no value stored for %q", slug))
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{
			"slug":     slug,
			"datatype": payload.Datatype(),
			"value":    payloadJSON(payload),
		})

	case http.MethodPut:
		var req struct {
			Value any `json:"value"`
		}
		if err := readJSONBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
			return
		}
		value, err := s.engine.Values().Set(r.Context(), ref, attr, nativeFromJSON(attr, req.Value))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{
			"slug":       slug,
			"datatype":   attr.Datatype,
			"value":      payloadJSON(value.Payload),
			"updated_at": value.UpdatedAt,
		})

	case http.MethodDelete:
		if err := s.engine.Values().Clear(r.Context(), ref, attr); err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"cleared": slug})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
