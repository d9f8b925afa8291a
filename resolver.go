package facet

// Role identifies one of the storage models the engine persists.
type Role string

const (
	RoleAttribute Role = "attribute"
	RoleValue     Role = "value"
	RoleEnumValue Role = "enum_value"
	RoleEnumGroup Role = "enum_group"
)

// Roles lists every role the engine resolves, in dependency order.
func Roles() []Role {
	return []Role{RoleEnumValue, RoleEnumGroup, RoleAttribute, RoleValue}
}

// ModelType describes the concrete storage model serving one role. In a
// relational engine a substituted model is a substituted table: hosts that
// extend the defaults point the descriptor at their own table, which must
// keep the default column contract. JoinTable is populated for
// RoleEnumGroup only and names the membership table backing the
// group-to-value many-to-many.
type ModelType struct {
	Role      Role   `json:"role"`
	Table     string `json:"table"`
	JoinTable string `json:"joinTable,omitempty"`
}

// ModelResolver resolves the storage model for a role. Configuration is
// fixed for the life of the process: the engine resolves each role once at
// startup and caches the result, so implementations must be deterministic.
type ModelResolver interface {
	Resolve(role Role) (ModelType, error)
}

// StaticResolver serves fixed table names. It is the default resolver,
// built from Config.Database.TableNames.
type StaticResolver struct {
	models map[Role]ModelType
}

// NewStaticResolver builds the default resolver from configured table
// names.
func NewStaticResolver(tables TableNames) *StaticResolver {
	return &StaticResolver{
		models: map[Role]ModelType{
			RoleAttribute: {Role: RoleAttribute, Table: tables.Attributes},
			RoleValue:     {Role: RoleValue, Table: tables.Values},
			RoleEnumValue: {Role: RoleEnumValue, Table: tables.EnumValues},
			RoleEnumGroup: {Role: RoleEnumGroup, Table: tables.EnumGroups, JoinTable: tables.EnumGroupValues},
		},
	}
}

// Resolve returns the model descriptor for the role. Unknown roles and
// descriptors with no table are configuration errors.
func (r *StaticResolver) Resolve(role Role) (ModelType, error) {
	model, ok := r.models[role]
	if !ok {
		return ModelType{}, NewConfigurationError("no model registered for role '" + string(role) + "'")
	}
	if model.Table == "" {
		return ModelType{}, NewConfigurationError("model for role '" + string(role) + "' has no table")
	}
	if role == RoleEnumGroup && model.JoinTable == "" {
		return ModelType{}, NewConfigurationError("enum group model has no membership table")
	}
	return model, nil
}
