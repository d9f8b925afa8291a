package facet

import (
	"github.com/google/uuid"
)

// MaxNameLength caps attribute names and slugs.
const MaxNameLength = 100

// EntityRef is a polymorphic reference to a host row: a content-type tag
// plus the row id. The engine never dereferences it; host tables stay
// outside the engine's schema.
type EntityRef struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

func (r EntityRef) String() string {
	return r.Type + "/" + r.ID.String()
}

// IsZero reports whether the reference is unset.
func (r EntityRef) IsZero() bool {
	return r.Type == "" && r.ID == uuid.Nil
}

// Attribute defines the schema of one EAV field: what it is called, how it
// is typed, and which constraints apply to its values.
type Attribute struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	Datatype    Datatype   `json:"datatype"`
	EnumGroupID *uuid.UUID `json:"enum_group_id,omitempty"`
	Required    bool       `json:"required"`
	Unique      bool       `json:"unique"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}

// StorageField returns the value column this attribute's payloads occupy.
func (a *Attribute) StorageField() string {
	return a.Datatype.StorageField()
}

func (a *Attribute) String() string {
	return a.Name + " (" + string(a.Datatype) + ")"
}

// CreateAttribute is the input to AttributeStore.Create. Slug is derived
// from Name via Slugify when empty.
type CreateAttribute struct {
	Name        string     `json:"name"`
	Slug        string     `json:"slug,omitempty"`
	Description string     `json:"description,omitempty"`
	Datatype    Datatype   `json:"datatype"`
	EnumGroupID *uuid.UUID `json:"enum_group_id,omitempty"`
	Required    bool       `json:"required"`
	Unique      bool       `json:"unique"`
}

// EnumValue is one deduplicated choice label. A label exists as exactly one
// row and is shared by every group that lists it.
type EnumValue struct {
	ID    uuid.UUID `json:"id"`
	Value string    `json:"value"`
}

func (v *EnumValue) String() string { return v.Value }

// EnumGroup is a named choice set for enum attributes. Values holds the
// current membership when the group was loaded with it.
type EnumGroup struct {
	ID     uuid.UUID   `json:"id"`
	Name   string      `json:"name"`
	Values []EnumValue `json:"values,omitempty"`
}

func (g *EnumGroup) String() string { return g.Name }

// Contains reports whether the loaded membership includes the given label
// (case-sensitive).
func (g *EnumGroup) Contains(label string) bool {
	for _, v := range g.Values {
		if v.Value == label {
			return true
		}
	}
	return false
}

// Value is one stored binding of an entity to an attribute. Payload holds
// the single populated column as a typed value.
type Value struct {
	ID          uuid.UUID `json:"id"`
	Entity      EntityRef `json:"entity"`
	AttributeID uuid.UUID `json:"attribute_id"`
	Payload     Payload   `json:"payload"`
	CreatedAt   int64     `json:"created_at"`
	UpdatedAt   int64     `json:"updated_at"`
}
