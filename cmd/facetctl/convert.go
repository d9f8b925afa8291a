package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	facet "github.com/openfacet/facet"
	"github.com/openfacet/facet/internal"
)

var (
	convertFile string
	convertOut  string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a JSON Schema into a definition document",
	Long: `Convert a JSON Schema into the YAML definition document that
facetctl apply consumes. Nested properties flatten into underscore
slugs; string enums become enum groups named after the attribute.

Type mapping: string -> text (format date/date-time -> date),
integer/number -> float, boolean -> bool, anything else -> text.

Examples:
  facetctl convert -f patient.schema.json -o patient.yaml
  facetctl convert -f listing.schema.json
`,
	Run: func(cmd *cobra.Command, args []string) {
		if convertFile == "" {
			fmt.Println("❌ --file is required")
			os.Exit(1)
		}

		data, err := os.ReadFile(convertFile)
		if err != nil {
			fmt.Println("❌ Read schema:", err)
			os.Exit(1)
		}

		doc, err := convertSchema(data)
		if err != nil {
			fmt.Println("❌ Convert failed:", err)
			os.Exit(1)
		}

		out, err := yaml.Marshal(doc)
		if err != nil {
			fmt.Println("❌ Encode document:", err)
			os.Exit(1)
		}

		// The emitted document must survive the apply-side validator.
		if _, err := internal.ParseDefinition(out); err != nil {
			fmt.Println("❌ Generated document failed validation:", err)
			os.Exit(1)
		}

		if convertOut == "" {
			fmt.Print(string(out))
			return
		}

		if err := os.WriteFile(convertOut, out, 0o644); err != nil {
			fmt.Println("❌ Write document:", err)
			os.Exit(1)
		}
		color.Green("✅ Wrote %d attributes, %d enum groups to %s",
			len(doc.Attributes), len(doc.EnumGroups), convertOut)
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertFile, "file", "f", "", "JSON Schema path")
	convertCmd.Flags().StringVarP(&convertOut, "out", "o", "", "Output path (defaults to stdout)")
}

// convertSchema flattens a JSON Schema's property tree into a definition
// document. Each leaf property becomes one attribute; the dotted path is
// the attribute name and the underscore-joined slugified path its slug.
func convertSchema(data []byte) (*internal.DefinitionDocument, error) {
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema JSON: %w", err)
	}

	doc := &internal.DefinitionDocument{Version: 1}
	walkSchema(schema, "", true, doc)

	if len(doc.Attributes) == 0 {
		return nil, fmt.Errorf("schema contains no convertible properties")
	}

	sort.Slice(doc.Attributes, func(i, j int) bool {
		return doc.Attributes[i].Slug < doc.Attributes[j].Slug
	})
	sort.Slice(doc.EnumGroups, func(i, j int) bool {
		return doc.EnumGroups[i].Name < doc.EnumGroups[j].Name
	})

	return doc, nil
}

func walkSchema(node map[string]any, path string, required bool, doc *internal.DefinitionDocument) {
	if properties, ok := node["properties"].(map[string]any); ok {
		requiredSet := buildRequiredSet(node)
		for key, raw := range properties {
			child, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			walkSchema(child, childPath, required && requiredSet[key], doc)
		}
		return
	}

	if path == "" {
		return
	}

	if schemaNodeType(node) == "array" {
		items, ok := node["items"].(map[string]any)
		if !ok {
			return
		}
		switch schemaNodeType(items) {
		case "object":
			walkSchema(items, path, false, doc)
		case "string", "integer", "number", "boolean":
			// Arrays of scalars flatten to a single-valued attribute of
			// the element type; repetition is the host's concern.
			appendAttribute(doc, path, items, false)
		}
		return
	}

	appendAttribute(doc, path, node, required)
}

func appendAttribute(doc *internal.DefinitionDocument, path string, node map[string]any, required bool) {
	slug := pathSlug(path)
	if slug == "" {
		return
	}

	attr := internal.AttributeDefinition{
		Name:     path,
		Slug:     slug,
		Datatype: string(schemaDatatype(node)),
		Required: required,
	}
	if desc, ok := node["description"].(string); ok {
		attr.Description = desc
	}

	if values := stringEnumValues(node); len(values) > 0 {
		attr.Datatype = string(facet.DatatypeEnum)
		attr.EnumGroup = slug
		doc.EnumGroups = append(doc.EnumGroups, internal.GroupDefinition{
			Name:   slug,
			Values: values,
		})
	}

	doc.Attributes = append(doc.Attributes, attr)
}

func schemaDatatype(node map[string]any) facet.Datatype {
	format, _ := node["format"].(string)

	switch schemaNodeType(node) {
	case "string":
		if format == "date" || format == "date-time" {
			return facet.DatatypeDate
		}
		return facet.DatatypeText
	case "integer", "number":
		return facet.DatatypeFloat
	case "boolean":
		return facet.DatatypeBoolean
	default:
		return facet.DatatypeText
	}
}

func schemaNodeType(node map[string]any) string {
	switch t := node["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

func stringEnumValues(node map[string]any) []string {
	raw, ok := node["enum"].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		values = append(values, s)
	}
	return values
}

func buildRequiredSet(node map[string]any) map[string]bool {
	set := make(map[string]bool)
	raw, ok := node["required"].([]any)
	if !ok {
		return set
	}
	for _, v := range raw {
		if s, ok := v.(string); ok {
			set[s] = true
		}
	}
	return set
}

// pathSlug joins the slugified path segments with underscores so nested
// properties stay distinguishable after flattening.
func pathSlug(path string) string {
	segments := strings.Split(path, ".")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if s := facet.Slugify(seg); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "_")
}
