package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/openfacet/facet"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// definitionSchemaJSON constrains definition documents before any row is
// written. Semantic rules the schema cannot express (enum pairing, slug
// collisions) are checked during apply.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["attributes"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "enum_groups": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "values"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1, "maxLength": 100},
          "values": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1, "maxLength": 100}
          }
        }
      }
    },
    "attributes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "datatype"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1, "maxLength": 100},
          "slug": {"type": "string", "pattern": "^[a-z0-9_]+$", "maxLength": 100},
          "description": {"type": "string"},
          "datatype": {"enum": ["text", "float", "date", "bool", "object", "enum"]},
          "enum_group": {"type": "string"},
          "required": {"type": "boolean"},
          "unique": {"type": "boolean"}
        }
      }
    }
  }
}`

var (
	definitionSchemaOnce sync.Once
	definitionSchemaRes  *jsonschema.Resolved
	definitionSchemaErr  error
)

func resolvedDefinitionSchema() (*jsonschema.Resolved, error) {
	definitionSchemaOnce.Do(func() {
		var schema jsonschema.Schema
		if err := json.Unmarshal([]byte(definitionSchemaJSON), &schema); err != nil {
			definitionSchemaErr = fmt.Errorf("unmarshal definition schema: %w", err)
			return
		}
		definitionSchemaRes, definitionSchemaErr = schema.Resolve(&jsonschema.ResolveOptions{})
		if definitionSchemaErr != nil {
			definitionSchemaErr = fmt.Errorf("resolve definition schema: %w", definitionSchemaErr)
		}
	})
	return definitionSchemaRes, definitionSchemaErr
}

// DefinitionDocument declares enum groups and attributes in one file.
// Applying a document is idempotent: existing matching definitions are
// skipped, divergent ones are conflicts.
type DefinitionDocument struct {
	Version    int                   `json:"version,omitempty" yaml:"version,omitempty"`
	EnumGroups []GroupDefinition     `json:"enum_groups,omitempty" yaml:"enum_groups,omitempty"`
	Attributes []AttributeDefinition `json:"attributes" yaml:"attributes"`
}

type GroupDefinition struct {
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values" yaml:"values"`
}

type AttributeDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Slug        string `json:"slug,omitempty" yaml:"slug,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Datatype    string `json:"datatype" yaml:"datatype"`
	EnumGroup   string `json:"enum_group,omitempty" yaml:"enum_group,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Unique      bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// ParseDefinition reads a YAML or JSON definition document and validates
// it against the document schema.
func ParseDefinition(data []byte) (*DefinitionDocument, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, facet.NewConfigurationError("definition document is not valid YAML or JSON").WithCause(err)
	}

	// Round-trip through JSON to normalize YAML types for validation.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize definition document: %w", err)
	}
	var docValue any
	if err := json.Unmarshal(jsonBytes, &docValue); err != nil {
		return nil, fmt.Errorf("normalize definition document: %w", err)
	}

	schema, err := resolvedDefinitionSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(docValue); err != nil {
		return nil, facet.NewConfigurationError("definition document rejected by schema").WithCause(err)
	}

	var doc DefinitionDocument
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("decode definition document: %w", err)
	}

	if err := checkDefinitionSemantics(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// checkDefinitionSemantics enforces the rules the JSON schema cannot:
// enum pairing, duplicate slugs, duplicate group names.
func checkDefinitionSemantics(doc *DefinitionDocument) error {
	groups := make(map[string]bool, len(doc.EnumGroups))
	for _, g := range doc.EnumGroups {
		if groups[g.Name] {
			return facet.NewConfigurationError(fmt.Sprintf("enum group %q declared twice", g.Name))
		}
		groups[g.Name] = true
	}

	slugs := make(map[string]bool, len(doc.Attributes))
	for _, a := range doc.Attributes {
		slug := a.Slug
		if slug == "" {
			slug = facet.Slugify(a.Name)
		}
		if slug == "" {
			return facet.NewConfigurationError(fmt.Sprintf("name %q yields an empty slug", a.Name))
		}
		if slugs[slug] {
			return facet.NewConfigurationError(fmt.Sprintf("attribute slug %q declared twice", slug))
		}
		slugs[slug] = true

		if a.Datatype == string(facet.DatatypeEnum) && a.EnumGroup == "" {
			return facet.NewConfigurationError(fmt.Sprintf("enum attribute %q needs an enum_group", a.Name))
		}
		if a.Datatype != string(facet.DatatypeEnum) && a.EnumGroup != "" {
			return facet.NewConfigurationError(fmt.Sprintf("enum group cannot be assigned to a %s attribute", a.Datatype))
		}
	}
	return nil
}

// LoadDefinitionFile reads and parses a definition document from disk.
func LoadDefinitionFile(path string) (*DefinitionDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	return ParseDefinition(data)
}

// ApplyResult summarizes one apply pass.
type ApplyResult struct {
	GroupsCreated     int      `json:"groups_created"`
	AttributesCreated int      `json:"attributes_created"`
	AttributesSkipped []string `json:"attributes_skipped,omitempty"`
}

// ApplyDefinitions writes the document into the engine. Groups come
// first so attributes can reference them; value labels are unioned into
// their groups on every run. Re-applying an unchanged document is a
// no-op apart from the membership union.
func ApplyDefinitions(ctx context.Context, eng facet.Engine, doc *DefinitionDocument) (*ApplyResult, error) {
	result := &ApplyResult{}
	groupIDs := make(map[string]uuid.UUID, len(doc.EnumGroups))

	for _, g := range doc.EnumGroups {
		group, err := eng.Enums().GetGroup(ctx, g.Name)
		if facet.IsNotFoundError(err) {
			group, err = eng.Enums().CreateGroup(ctx, g.Name)
			if err == nil {
				result.GroupsCreated++
			}
		}
		if err != nil {
			return nil, err
		}
		if err := eng.Enums().AddGroupValues(ctx, group.ID, g.Values...); err != nil {
			return nil, err
		}
		groupIDs[g.Name] = group.ID
	}

	for _, a := range doc.Attributes {
		slug := a.Slug
		if slug == "" {
			slug = facet.Slugify(a.Name)
		}
		datatype, err := facet.ParseDatatype(a.Datatype)
		if err != nil {
			return nil, facet.NewConfigurationError(err.Error())
		}

		var groupID *uuid.UUID
		if datatype == facet.DatatypeEnum {
			id, ok := groupIDs[a.EnumGroup]
			if !ok {
				// Group declared in an earlier document run.
				group, err := eng.Enums().GetGroup(ctx, a.EnumGroup)
				if err != nil {
					return nil, err
				}
				id = group.ID
			}
			groupID = &id
		}

		existing, err := eng.Attributes().GetBySlug(ctx, slug)
		if err == nil {
			if existing.Datatype != datatype {
				return nil, facet.NewConflictError(
					fmt.Sprintf("attribute %q already defined with datatype %s", slug, existing.Datatype))
			}
			if datatype == facet.DatatypeEnum && (existing.EnumGroupID == nil || *existing.EnumGroupID != *groupID) {
				return nil, facet.NewConflictError(
					fmt.Sprintf("attribute %q already bound to a different enum group", slug))
			}
			result.AttributesSkipped = append(result.AttributesSkipped, slug)
			continue
		}
		if !facet.IsNotFoundError(err) {
			return nil, err
		}

		if _, err := eng.Attributes().Create(ctx, facet.CreateAttribute{
			Name:        a.Name,
			Slug:        slug,
			Description: a.Description,
			Datatype:    datatype,
			EnumGroupID: groupID,
			Required:    a.Required,
			Unique:      a.Unique,
		}); err != nil {
			return nil, err
		}
		result.AttributesCreated++
	}

	zap.S().Infow("definitions applied",
		"groups_created", result.GroupsCreated,
		"attributes_created", result.AttributesCreated,
		"attributes_skipped", len(result.AttributesSkipped))
	return result, nil
}
