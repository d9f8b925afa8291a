package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openfacet/facet"
	"go.uber.org/zap"
)

const attributeColumns = "id, name, slug, description, datatype, enum_group_id, required, is_unique, created_at, updated_at"

// PostgresAttributeStore implements facet.AttributeStore.
type PostgresAttributeStore struct {
	pool    storePool
	tables  *resolvedTables
	nowFunc func() time.Time
}

func NewPostgresAttributeStore(pool storePool, tables *resolvedTables) *PostgresAttributeStore {
	return &PostgresAttributeStore{
		pool:    pool,
		tables:  tables,
		nowFunc: time.Now,
	}
}

func (s *PostgresAttributeStore) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

func (s *PostgresAttributeStore) nowMillis() int64 {
	return s.nowFunc().UnixMilli()
}

// validateDefinition normalizes the input and reports definition mistakes
// before anything touches the database.
func validateDefinition(in *facet.CreateAttribute) error {
	if in.Name == "" {
		return facet.NewConfigurationError("attribute name is required")
	}
	if len(in.Name) > facet.MaxNameLength {
		return facet.NewConfigurationError(fmt.Sprintf("attribute name exceeds %d characters", facet.MaxNameLength))
	}
	if !in.Datatype.Valid() {
		return facet.NewConfigurationError(fmt.Sprintf("unknown datatype %q", in.Datatype))
	}
	if in.Datatype == facet.DatatypeEnum && in.EnumGroupID == nil {
		return facet.NewConfigurationError(fmt.Sprintf("enum attribute %q needs an enum group", in.Name))
	}
	if in.Datatype != facet.DatatypeEnum && in.EnumGroupID != nil {
		return facet.NewConfigurationError(fmt.Sprintf("enum group cannot be assigned to a %s attribute", in.Datatype))
	}

	if in.Slug == "" {
		in.Slug = facet.Slugify(in.Name)
	}
	if in.Slug == "" {
		return facet.NewConfigurationError(fmt.Sprintf("name %q yields an empty slug", in.Name))
	}
	if in.Slug != facet.Slugify(in.Slug) {
		return facet.NewConfigurationError(fmt.Sprintf("slug %q is not a valid identifier", in.Slug))
	}
	if len(in.Slug) > facet.MaxNameLength {
		return facet.NewConfigurationError(fmt.Sprintf("slug exceeds %d characters", facet.MaxNameLength))
	}
	return nil
}

func (s *PostgresAttributeStore) Create(ctx context.Context, in facet.CreateAttribute) (*facet.Attribute, error) {
	if err := validateDefinition(&in); err != nil {
		return nil, err
	}

	if in.EnumGroupID != nil {
		var exists bool
		query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", s.tables.enumGroups)
		if err := s.pool.QueryRow(ctx, query, *in.EnumGroupID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check enum group: %w", err)
		}
		if !exists {
			return nil, facet.NewConfigurationError(fmt.Sprintf("enum group %s does not exist", *in.EnumGroupID))
		}
	}

	now := s.nowMillis()
	attr := &facet.Attribute{
		ID:          uuid.Must(uuid.NewV7()),
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		Datatype:    in.Datatype,
		EnumGroupID: in.EnumGroupID,
		Required:    in.Required,
		Unique:      in.Unique,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (slug) DO NOTHING
			RETURNING id`,
		s.tables.attributes, attributeColumns,
	)
	var inserted uuid.UUID
	err := s.pool.QueryRow(ctx, query,
		attr.ID, attr.Name, attr.Slug, attr.Description, attr.Datatype,
		attr.EnumGroupID, attr.Required, attr.Unique, attr.CreatedAt, attr.UpdatedAt,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, facet.NewConflictError(fmt.Sprintf("attribute with slug %q already exists", attr.Slug))
	}
	if err != nil {
		return nil, fmt.Errorf("insert attribute: %w", err)
	}

	zap.S().Debugw("attribute created", "slug", attr.Slug, "datatype", attr.Datatype)
	return attr, nil
}

func (s *PostgresAttributeStore) GetBySlug(ctx context.Context, slug string) (*facet.Attribute, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE slug = $1", attributeColumns, s.tables.attributes)
	attr, err := scanAttribute(s.pool.QueryRow(ctx, query, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, facet.NewNotFoundError(fmt.Sprintf("attribute %q not found", slug))
	}
	if err != nil {
		return nil, fmt.Errorf("query attribute: %w", err)
	}
	return attr, nil
}

func (s *PostgresAttributeStore) List(ctx context.Context) ([]*facet.Attribute, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY slug", attributeColumns, s.tables.attributes)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()

	var attrs []*facet.Attribute
	for rows.Next() {
		attr, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		attrs = append(attrs, attr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return attrs, nil
}

func (s *PostgresAttributeStore) Delete(ctx context.Context, slug string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE slug = $1", s.tables.attributes)
	tag, err := s.pool.Exec(ctx, query, slug)
	if err != nil {
		return fmt.Errorf("delete attribute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return facet.NewNotFoundError(fmt.Sprintf("attribute %q not found", slug))
	}
	return nil
}

func scanAttribute(row pgx.Row) (*facet.Attribute, error) {
	var attr facet.Attribute
	if err := row.Scan(
		&attr.ID,
		&attr.Name,
		&attr.Slug,
		&attr.Description,
		&attr.Datatype,
		&attr.EnumGroupID,
		&attr.Required,
		&attr.Unique,
		&attr.CreatedAt,
		&attr.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &attr, nil
}
