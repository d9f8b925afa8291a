package facet

import (
	"context"
	"fmt"
)

// Entity presents one host's EAV attributes as a uniform
// get/set/validate surface. It holds the host reference and the applicable
// attribute list, nothing else: every read and write passes through the
// stores, so concurrent façades bound to the same host always observe the
// latest committed state.
type Entity struct {
	ref    EntityRef
	attrs  []*Attribute
	bySlug map[string]*Attribute
	values ValueStore
	enums  EnumStore
}

// BindEntity constructs a façade over the given stores. The attribute
// order is preserved for Validate and AsMap.
func BindEntity(values ValueStore, enums EnumStore, ref EntityRef, attrs []*Attribute) *Entity {
	bySlug := make(map[string]*Attribute, len(attrs))
	for _, a := range attrs {
		bySlug[a.Slug] = a
	}
	return &Entity{
		ref:    ref,
		attrs:  attrs,
		bySlug: bySlug,
		values: values,
		enums:  enums,
	}
}

// Ref returns the bound host reference.
func (e *Entity) Ref() EntityRef {
	return e.ref
}

// Attributes returns the applicable attributes in bind order.
func (e *Entity) Attributes() []*Attribute {
	return e.attrs
}

func (e *Entity) attribute(slug string) (*Attribute, error) {
	attr, ok := e.bySlug[slug]
	if !ok {
		return nil, NewUnknownAttributeError(slug)
	}
	return attr, nil
}

// GetValue returns the stored payload for the slug; (nil, false, nil) when
// no value is stored.
func (e *Entity) GetValue(ctx context.Context, slug string) (Payload, bool, error) {
	attr, err := e.attribute(slug)
	if err != nil {
		return nil, false, err
	}
	return e.values.Get(ctx, e.ref, attr)
}

// SetValue writes a native value through the attribute's datatype. Store
// errors propagate unchanged.
func (e *Entity) SetValue(ctx context.Context, slug string, native any) (*Value, error) {
	attr, err := e.attribute(slug)
	if err != nil {
		return nil, err
	}
	return e.values.Set(ctx, e.ref, attr, native)
}

// ClearValue removes the stored value; required attributes refuse.
func (e *Entity) ClearValue(ctx context.Context, slug string) error {
	attr, err := e.attribute(slug)
	if err != nil {
		return err
	}
	return e.values.Clear(ctx, e.ref, attr)
}

// Validate checks every applicable attribute in one pass and aggregates
// all violations: required attributes without a value, stored payloads
// whose datatype no longer matches the definition, and enum payloads whose
// choice left the group. Returns *ValidationError naming every violation,
// or nil.
func (e *Entity) Validate(ctx context.Context) error {
	ve := NewValidationError()

	for _, attr := range e.attrs {
		payload, found, err := e.values.Get(ctx, e.ref, attr)
		if err != nil {
			return fmt.Errorf("validate %s: %w", attr.Slug, err)
		}
		if !found {
			if attr.Required {
				ve.Add(attr.Slug, ErrRequiredField, "required attribute has no value")
			}
			continue
		}

		if payload.Datatype() != attr.Datatype {
			ve.Add(attr.Slug, ErrTypeMismatch,
				fmt.Sprintf("stored payload is %s, attribute expects %s", payload.Datatype(), attr.Datatype))
			continue
		}

		if attr.Datatype == DatatypeEnum && attr.EnumGroupID != nil {
			choice, ok := payload.(Choice)
			if !ok {
				ve.Add(attr.Slug, ErrTypeMismatch, "stored payload is not a choice")
				continue
			}
			member, err := e.enums.GroupContains(ctx, *attr.EnumGroupID, choice.ID)
			if err != nil {
				return fmt.Errorf("validate %s: %w", attr.Slug, err)
			}
			if !member {
				ve.Add(attr.Slug, ErrInvalidChoice,
					fmt.Sprintf("stored choice %q is no longer in the group", choice.Value))
			}
		}
	}

	return ve.ToError()
}

// AsMap snapshots slug → payload for every applicable attribute with a
// stored value. Recomputed on each call; absent attributes are simply
// missing keys.
func (e *Entity) AsMap(ctx context.Context) (map[string]Payload, error) {
	out := make(map[string]Payload, len(e.attrs))
	for _, attr := range e.attrs {
		payload, found, err := e.values.Get(ctx, e.ref, attr)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", attr.Slug, err)
		}
		if found {
			out[attr.Slug] = payload
		}
	}
	return out, nil
}
