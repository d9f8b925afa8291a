package internal

import (
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/openfacet/facet"
	"go.uber.org/zap"
)

// resolvedTables holds the sanitized table identifiers of every storage
// model. Resolution runs once at engine construction; substituted models
// cannot change for the life of the process.
type resolvedTables struct {
	attributes      string
	values          string
	enumValues      string
	enumGroups      string
	enumGroupValues string
	changeLog       string
}

// resolveTables resolves each role through the model resolver and
// sanitizes the table names for interpolation. The change log is
// engine-internal, not a resolvable model; an empty name disables the
// change feed.
func resolveTables(resolver facet.ModelResolver, changeLog string) (*resolvedTables, error) {
	var tables resolvedTables
	for _, role := range facet.Roles() {
		model, err := resolver.Resolve(role)
		if err != nil {
			return nil, err
		}
		switch role {
		case facet.RoleAttribute:
			tables.attributes = sanitizeIdentifier(model.Table)
		case facet.RoleValue:
			tables.values = sanitizeIdentifier(model.Table)
		case facet.RoleEnumValue:
			tables.enumValues = sanitizeIdentifier(model.Table)
		case facet.RoleEnumGroup:
			tables.enumGroups = sanitizeIdentifier(model.Table)
			tables.enumGroupValues = sanitizeIdentifier(model.JoinTable)
		}
	}
	if changeLog == "" {
		zap.S().Info("change log table name is empty, change feed is disabled")
	} else {
		tables.changeLog = sanitizeIdentifier(changeLog)
	}
	return &tables, nil
}

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}
