package internal

import (
	"context"

	"github.com/openfacet/facet"
)

type engine struct {
	attrs  *PostgresAttributeStore
	enums  *PostgresEnumStore
	values *PostgresValueStore
}

// NewEngine resolves the storage models once and assembles the stores
// over one pool. The resolver is consulted only here; substituted models
// are fixed for the life of the process.
func NewEngine(pool storePool, cfg *facet.Config) (facet.Engine, error) {
	if cfg == nil {
		cfg = facet.DefaultConfig()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = facet.NewStaticResolver(cfg.Database.TableNames)
	}
	tables, err := resolveTables(resolver, cfg.Database.TableNames.ChangeLog)
	if err != nil {
		return nil, err
	}
	return &engine{
		attrs:  NewPostgresAttributeStore(pool, tables),
		enums:  NewPostgresEnumStore(pool, tables),
		values: NewPostgresValueStore(pool, tables),
	}, nil
}

func (e *engine) Attributes() facet.AttributeStore { return e.attrs }

func (e *engine) Enums() facet.EnumStore { return e.enums }

func (e *engine) Values() facet.ValueStore { return e.values }

func (e *engine) Bind(ref facet.EntityRef, attrs []*facet.Attribute) *facet.Entity {
	return facet.BindEntity(e.values, e.enums, ref, attrs)
}

func (e *engine) BindSlugs(ctx context.Context, ref facet.EntityRef, slugs ...string) (*facet.Entity, error) {
	attrs := make([]*facet.Attribute, 0, len(slugs))
	for _, slug := range slugs {
		attr, err := e.attrs.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return e.Bind(ref, attrs), nil
}
