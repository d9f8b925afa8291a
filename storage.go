package facet

import (
	"context"

	"github.com/google/uuid"
)

// AttributeStore persists attribute definitions.
type AttributeStore interface {
	// Create validates the definition (datatype/enum pairing, slug
	// derivation and collision) and inserts it.
	Create(ctx context.Context, in CreateAttribute) (*Attribute, error)
	// GetBySlug returns the attribute or a not-found error.
	GetBySlug(ctx context.Context, slug string) (*Attribute, error)
	// List returns all attributes ordered by slug.
	List(ctx context.Context) ([]*Attribute, error)
	// Delete removes the attribute; its stored values cascade away.
	Delete(ctx context.Context, slug string) error
}

// EnumStore persists the shared choice catalogs. All value creation routes
// through GetOrCreateValue so a label exists as exactly one row.
type EnumStore interface {
	GetOrCreateValue(ctx context.Context, label string) (*EnumValue, error)
	CreateGroup(ctx context.Context, name string) (*EnumGroup, error)
	// GetGroup loads the group and its current membership.
	GetGroup(ctx context.Context, name string) (*EnumGroup, error)
	// AddGroupValues unions labels into the group; present labels are
	// no-ops.
	AddGroupValues(ctx context.Context, groupID uuid.UUID, labels ...string) error
	// RemoveGroupValue detaches a label; not-found error when the label is
	// not a current member. Stored values referencing the label are left
	// in place.
	RemoveGroupValue(ctx context.Context, groupID uuid.UUID, label string) error
	// GroupChoices returns the current membership ordered by label.
	GroupChoices(ctx context.Context, groupID uuid.UUID) ([]EnumValue, error)
	// GroupContains reports whether the value id is a current member.
	GroupContains(ctx context.Context, groupID, valueID uuid.UUID) (bool, error)
}

// ValueStore persists the polymorphic (entity, attribute) bindings.
type ValueStore interface {
	// Set coerces native input through the attribute's datatype and
	// upserts the row, holding uniqueness checks and the write in one
	// transaction.
	Set(ctx context.Context, ref EntityRef, attr *Attribute, native any) (*Value, error)
	// Get returns the stored payload; absence is (nil, false, nil), not an
	// error.
	Get(ctx context.Context, ref EntityRef, attr *Attribute) (Payload, bool, error)
	// Clear deletes the row; required attributes refuse with a
	// required-field error.
	Clear(ctx context.Context, ref EntityRef, attr *Attribute) error
	// DeleteForEntity removes every row of one entity regardless of
	// required flags. Host deletion hook; returns the rows removed.
	DeleteForEntity(ctx context.Context, ref EntityRef) (int64, error)
}

// Engine is the assembled storage layer handed to hosts.
type Engine interface {
	Attributes() AttributeStore
	Enums() EnumStore
	Values() ValueStore

	// Bind attaches a façade to one host reference and the ordered
	// attributes applicable to its type. No data is copied or cached.
	Bind(ref EntityRef, attrs []*Attribute) *Entity
	// BindSlugs resolves each slug through the attribute store, then
	// binds.
	BindSlugs(ctx context.Context, ref EntityRef, slugs ...string) (*Entity, error)
}
