package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openfacet/facet"
	"go.uber.org/zap"
)

// PostgresEnumStore implements facet.EnumStore. Choice labels are global
// rows shared across groups; membership lives in the join table.
type PostgresEnumStore struct {
	pool   storePool
	tables *resolvedTables
}

func NewPostgresEnumStore(pool storePool, tables *resolvedTables) *PostgresEnumStore {
	return &PostgresEnumStore{
		pool:   pool,
		tables: tables,
	}
}

func (s *PostgresEnumStore) GetOrCreateValue(ctx context.Context, label string) (*facet.EnumValue, error) {
	return s.getOrCreateValue(ctx, s.pool, label)
}

// getOrCreateValue runs against the pool or an open transaction. Labels
// are case-sensitive: "No" and "no" are distinct rows.
func (s *PostgresEnumStore) getOrCreateValue(ctx context.Context, conn dbConn, label string) (*facet.EnumValue, error) {
	if label == "" {
		return nil, facet.NewConfigurationError("enum value label is required")
	}
	if len(label) > facet.MaxNameLength {
		return nil, facet.NewConfigurationError(fmt.Sprintf("enum value label exceeds %d characters", facet.MaxNameLength))
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (id, value) VALUES ($1, $2) ON CONFLICT (value) DO NOTHING RETURNING id",
		s.tables.enumValues,
	)
	id := uuid.Must(uuid.NewV7())
	err := conn.QueryRow(ctx, insert, id, label).Scan(&id)
	if err == nil {
		return &facet.EnumValue{ID: id, Value: label}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert enum value: %w", err)
	}

	// Lost the insert to an existing row; read it back.
	query := fmt.Sprintf("SELECT id FROM %s WHERE value = $1", s.tables.enumValues)
	if err := conn.QueryRow(ctx, query, label).Scan(&id); err != nil {
		return nil, fmt.Errorf("query enum value: %w", err)
	}
	return &facet.EnumValue{ID: id, Value: label}, nil
}

func (s *PostgresEnumStore) CreateGroup(ctx context.Context, name string) (*facet.EnumGroup, error) {
	if name == "" {
		return nil, facet.NewConfigurationError("enum group name is required")
	}
	if len(name) > facet.MaxNameLength {
		return nil, facet.NewConfigurationError(fmt.Sprintf("enum group name exceeds %d characters", facet.MaxNameLength))
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING RETURNING id",
		s.tables.enumGroups,
	)
	id := uuid.Must(uuid.NewV7())
	err := s.pool.QueryRow(ctx, insert, id, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, facet.NewConflictError(fmt.Sprintf("enum group %q already exists", name))
	}
	if err != nil {
		return nil, fmt.Errorf("insert enum group: %w", err)
	}

	zap.S().Debugw("enum group created", "name", name)
	return &facet.EnumGroup{ID: id, Name: name}, nil
}

func (s *PostgresEnumStore) GetGroup(ctx context.Context, name string) (*facet.EnumGroup, error) {
	query := fmt.Sprintf("SELECT id, name FROM %s WHERE name = $1", s.tables.enumGroups)
	var group facet.EnumGroup
	err := s.pool.QueryRow(ctx, query, name).Scan(&group.ID, &group.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, facet.NewNotFoundError(fmt.Sprintf("enum group %q not found", name))
	}
	if err != nil {
		return nil, fmt.Errorf("query enum group: %w", err)
	}

	values, err := s.GroupChoices(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	group.Values = values
	return &group, nil
}

func (s *PostgresEnumStore) AddGroupValues(ctx context.Context, groupID uuid.UUID, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	attach := fmt.Sprintf(
		"INSERT INTO %s (group_id, value_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		s.tables.enumGroupValues,
	)
	for _, label := range labels {
		value, err := s.getOrCreateValue(ctx, tx, label)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, attach, groupID, value.ID); err != nil {
			return fmt.Errorf("attach enum value: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RemoveGroupValue detaches a label from the group. The value row and any
// stored choices referencing it stay in place; validation flags those as
// orphans from here on.
func (s *PostgresEnumStore) RemoveGroupValue(ctx context.Context, groupID uuid.UUID, label string) error {
	query := fmt.Sprintf(
		`DELETE FROM %s m USING %s v
			WHERE m.value_id = v.id AND m.group_id = $1 AND v.value = $2`,
		s.tables.enumGroupValues, s.tables.enumValues,
	)
	tag, err := s.pool.Exec(ctx, query, groupID, label)
	if err != nil {
		return fmt.Errorf("detach enum value: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return facet.NewNotFoundError(fmt.Sprintf("value %q is not a member of the group", label))
	}
	return nil
}

func (s *PostgresEnumStore) GroupChoices(ctx context.Context, groupID uuid.UUID) ([]facet.EnumValue, error) {
	query := fmt.Sprintf(
		`SELECT v.id, v.value FROM %s v
			JOIN %s m ON m.value_id = v.id
			WHERE m.group_id = $1
			ORDER BY v.value`,
		s.tables.enumValues, s.tables.enumGroupValues,
	)
	rows, err := s.pool.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group choices: %w", err)
	}
	defer rows.Close()

	var values []facet.EnumValue
	for rows.Next() {
		var v facet.EnumValue
		if err := rows.Scan(&v.ID, &v.Value); err != nil {
			return nil, fmt.Errorf("scan enum value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group choices: %w", err)
	}
	return values, nil
}

func (s *PostgresEnumStore) GroupContains(ctx context.Context, groupID, valueID uuid.UUID) (bool, error) {
	query := fmt.Sprintf(
		"SELECT EXISTS(SELECT 1 FROM %s WHERE group_id = $1 AND value_id = $2)",
		s.tables.enumGroupValues,
	)
	var member bool
	if err := s.pool.QueryRow(ctx, query, groupID, valueID).Scan(&member); err != nil {
		return false, fmt.Errorf("query group membership: %w", err)
	}
	return member, nil
}
