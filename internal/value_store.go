package internal

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/openfacet/facet"
	"go.uber.org/zap"
)

// PostgresValueStore implements facet.ValueStore: one row per
// (entity, attribute) pair, exactly one value column populated.
type PostgresValueStore struct {
	pool    storePool
	tables  *resolvedTables
	nowFunc func() time.Time
}

func NewPostgresValueStore(pool storePool, tables *resolvedTables) *PostgresValueStore {
	return &PostgresValueStore{
		pool:    pool,
		tables:  tables,
		nowFunc: time.Now,
	}
}

func (s *PostgresValueStore) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

func (s *PostgresValueStore) nowMillis() int64 {
	return s.nowFunc().UnixMilli()
}

// valueColumns mirrors the nullable value columns of one row. At most one
// of the six storage slots is non-nil; the object slot spans two columns.
type valueColumns struct {
	Text     *string
	Float    *float64
	Date     *time.Time
	Bool     *bool
	ObjectCT *string
	ObjectID *uuid.UUID
	EnumID   *uuid.UUID
}

func columnsFor(payload facet.Payload) valueColumns {
	var c valueColumns
	switch p := payload.(type) {
	case facet.Text:
		s := string(p)
		c.Text = &s
	case facet.Float:
		f := float64(p)
		c.Float = &f
	case facet.Date:
		t := p.Time()
		c.Date = &t
	case facet.Bool:
		b := bool(p)
		c.Bool = &b
	case facet.Object:
		ct := p.Type
		id := p.ID
		c.ObjectCT = &ct
		c.ObjectID = &id
	case facet.Choice:
		id := p.ID
		c.EnumID = &id
	}
	return c
}

// payload extracts the typed payload from whichever column is populated.
// The row, not the current attribute definition, is authoritative: a
// definition whose datatype changed after the write surfaces here as a
// payload of the old datatype, which validation then flags.
func (c valueColumns) payload(enumLabel *string) (facet.Payload, error) {
	switch {
	case c.Text != nil:
		return facet.Text(*c.Text), nil
	case c.Float != nil:
		return facet.Float(*c.Float), nil
	case c.Date != nil:
		return facet.DateOf(*c.Date), nil
	case c.Bool != nil:
		return facet.Bool(*c.Bool), nil
	case c.ObjectID != nil:
		var ct string
		if c.ObjectCT != nil {
			ct = *c.ObjectCT
		}
		return facet.Object{Type: ct, ID: *c.ObjectID}, nil
	case c.EnumID != nil:
		var label string
		if enumLabel != nil {
			label = *enumLabel
		}
		return facet.Choice{ID: *c.EnumID, Value: label}, nil
	}
	return nil, fmt.Errorf("value row has no populated column")
}

func lockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(h.Sum64())
}

// resolveChoice normalizes enum input and resolves it against the
// attribute's group membership.
func (s *PostgresValueStore) resolveChoice(ctx context.Context, conn dbConn, attr *facet.Attribute, native any) (facet.Choice, error) {
	if attr.EnumGroupID == nil {
		return facet.Choice{}, facet.NewConfigurationError(fmt.Sprintf("enum attribute %q has no enum group", attr.Slug))
	}
	label, id, err := enumInput(attr.Slug, native)
	if err != nil {
		return facet.Choice{}, err
	}

	var (
		choice facet.Choice
		query  string
	)
	memberJoin := fmt.Sprintf(
		"SELECT v.id, v.value FROM %s v JOIN %s m ON m.value_id = v.id WHERE m.group_id = $1",
		s.tables.enumValues, s.tables.enumGroupValues,
	)
	if id != uuid.Nil {
		query = memberJoin + " AND v.id = $2"
		err = conn.QueryRow(ctx, query, *attr.EnumGroupID, id).Scan(&choice.ID, &choice.Value)
	} else {
		query = memberJoin + " AND v.value = $2"
		err = conn.QueryRow(ctx, query, *attr.EnumGroupID, label).Scan(&choice.ID, &choice.Value)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if label == "" {
			label = id.String()
		}
		return facet.Choice{}, facet.NewInvalidChoiceError(attr.Slug, fmt.Sprintf("%q is not a choice of this attribute", label))
	}
	if err != nil {
		return facet.Choice{}, fmt.Errorf("resolve choice: %w", err)
	}
	return choice, nil
}

func (s *PostgresValueStore) Set(ctx context.Context, ref facet.EntityRef, attr *facet.Attribute, native any) (*facet.Value, error) {
	if attr == nil {
		return nil, facet.NewConfigurationError("attribute is required")
	}
	if ref.IsZero() {
		return nil, facet.NewConfigurationError("entity reference is required")
	}
	if native == nil {
		return nil, facet.NewTypeMismatchError(attr.Slug, "value is required; use Clear to remove a value")
	}

	var payload facet.Payload
	if attr.Datatype == facet.DatatypeEnum {
		choice, err := s.resolveChoice(ctx, s.pool, attr, native)
		if err != nil {
			return nil, err
		}
		payload = choice
	} else {
		coerced, err := coercePayload(attr, native)
		if err != nil {
			return nil, err
		}
		payload = coerced
	}

	now := s.nowMillis()
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	if attr.Unique {
		if err := s.checkUnique(ctx, tx, ref, attr, payload); err != nil {
			return nil, err
		}
	}

	value := &facet.Value{
		ID:          uuid.Must(uuid.NewV7()),
		Entity:      ref,
		AttributeID: attr.ID,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	cols := columnsFor(payload)
	upsert := fmt.Sprintf(
		`INSERT INTO %s (id, entity_ct, entity_id, attribute_id, value_text, value_float, value_date, value_bool, value_object_ct, value_object_id, value_enum_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (entity_ct, entity_id, attribute_id) DO UPDATE SET
				value_text = EXCLUDED.value_text,
				value_float = EXCLUDED.value_float,
				value_date = EXCLUDED.value_date,
				value_bool = EXCLUDED.value_bool,
				value_object_ct = EXCLUDED.value_object_ct,
				value_object_id = EXCLUDED.value_object_id,
				value_enum_id = EXCLUDED.value_enum_id,
				updated_at = EXCLUDED.updated_at
			RETURNING id, created_at`,
		s.tables.values,
	)
	err = tx.QueryRow(ctx, upsert,
		value.ID, ref.Type, ref.ID, attr.ID,
		cols.Text, cols.Float, cols.Date, cols.Bool, cols.ObjectCT, cols.ObjectID, cols.EnumID,
		now, now,
	).Scan(&value.ID, &value.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert value: %w", err)
	}

	if err := s.stampChangeLog(ctx, tx, ref, attr.ID, now, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	zap.S().Debugw("value set", "entity", ref.String(), "attribute", attr.Slug, "datatype", attr.Datatype)
	return value, nil
}

// checkUnique runs inside the write transaction. Writers of the same
// attribute are serialized on an advisory lock for the life of the
// transaction, so two concurrent inserts of an equal payload cannot both
// pass the collision probe.
func (s *PostgresValueStore) checkUnique(ctx context.Context, tx pgx.Tx, ref facet.EntityRef, attr *facet.Attribute, payload facet.Payload) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(attr.ID)); err != nil {
		return fmt.Errorf("acquire attribute lock: %w", err)
	}

	cond, condArgs := uniqueCondition(payload)
	query := fmt.Sprintf(
		"SELECT entity_ct, entity_id FROM %s WHERE attribute_id = $1 AND %s AND NOT (entity_ct = $%d AND entity_id = $%d) LIMIT 1",
		s.tables.values, cond, len(condArgs)+2, len(condArgs)+3,
	)
	args := append([]any{attr.ID}, condArgs...)
	args = append(args, ref.Type, ref.ID)

	var other facet.EntityRef
	err := tx.QueryRow(ctx, query, args...).Scan(&other.Type, &other.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check uniqueness: %w", err)
	}
	return facet.NewUniquenessError(attr.Slug, fmt.Sprintf("value already assigned to %s", other.String()))
}

// uniqueCondition builds the equality condition for the populated column,
// with placeholders numbered from $2 ($1 is the attribute id).
func uniqueCondition(payload facet.Payload) (string, []any) {
	cols := columnsFor(payload)
	switch {
	case cols.Text != nil:
		return "value_text = $2", []any{*cols.Text}
	case cols.Float != nil:
		return "value_float = $2", []any{*cols.Float}
	case cols.Date != nil:
		return "value_date = $2", []any{*cols.Date}
	case cols.Bool != nil:
		return "value_bool = $2", []any{*cols.Bool}
	case cols.ObjectID != nil:
		return "value_object_ct = $2 AND value_object_id = $3", []any{*cols.ObjectCT, *cols.ObjectID}
	case cols.EnumID != nil:
		return "value_enum_id = $2", []any{*cols.EnumID}
	}
	return "FALSE", nil
}

func (s *PostgresValueStore) Get(ctx context.Context, ref facet.EntityRef, attr *facet.Attribute) (facet.Payload, bool, error) {
	if attr == nil {
		return nil, false, facet.NewConfigurationError("attribute is required")
	}

	query := fmt.Sprintf(
		`SELECT r.value_text, r.value_float, r.value_date, r.value_bool, r.value_object_ct, r.value_object_id, r.value_enum_id, v.value
			FROM %s r
			LEFT JOIN %s v ON v.id = r.value_enum_id
			WHERE r.entity_ct = $1 AND r.entity_id = $2 AND r.attribute_id = $3`,
		s.tables.values, s.tables.enumValues,
	)
	var (
		cols      valueColumns
		enumLabel *string
	)
	err := s.pool.QueryRow(ctx, query, ref.Type, ref.ID, attr.ID).Scan(
		&cols.Text, &cols.Float, &cols.Date, &cols.Bool, &cols.ObjectCT, &cols.ObjectID, &cols.EnumID, &enumLabel,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query value: %w", err)
	}

	payload, err := cols.payload(enumLabel)
	if err != nil {
		return nil, false, fmt.Errorf("read value for %s: %w", attr.Slug, err)
	}
	return payload, true, nil
}

func (s *PostgresValueStore) Clear(ctx context.Context, ref facet.EntityRef, attr *facet.Attribute) error {
	if attr == nil {
		return facet.NewConfigurationError("attribute is required")
	}
	if attr.Required {
		return facet.NewRequiredFieldError(attr.Slug)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf("DELETE FROM %s WHERE entity_ct = $1 AND entity_id = $2 AND attribute_id = $3", s.tables.values)
	tag, err := tx.Exec(ctx, query, ref.Type, ref.ID, attr.ID)
	if err != nil {
		return fmt.Errorf("delete value: %w", err)
	}

	// Clearing an absent value is a no-op, not an error.
	if tag.RowsAffected() > 0 {
		now := s.nowMillis()
		deletedAt := now
		if err := s.stampChangeLog(ctx, tx, ref, attr.ID, now, &deletedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeleteForEntity removes every value row of one host row, required or
// not. Hosts call this from their deletion hooks.
func (s *PostgresValueStore) DeleteForEntity(ctx context.Context, ref facet.EntityRef) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf("DELETE FROM %s WHERE entity_ct = $1 AND entity_id = $2 RETURNING attribute_id", s.tables.values)
	rows, err := tx.Query(ctx, query, ref.Type, ref.ID)
	if err != nil {
		return 0, fmt.Errorf("delete entity values: %w", err)
	}
	var attrIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan deleted value: %w", err)
		}
		attrIDs = append(attrIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate deleted values: %w", err)
	}

	now := s.nowMillis()
	deletedAt := now
	for _, attrID := range attrIDs {
		if err := s.stampChangeLog(ctx, tx, ref, attrID, now, &deletedAt); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	if len(attrIDs) > 0 {
		zap.S().Debugw("entity values deleted", "entity", ref.String(), "count", len(attrIDs))
	}
	return int64(len(attrIDs)), nil
}

func (s *PostgresValueStore) stampChangeLog(ctx context.Context, tx pgx.Tx, ref facet.EntityRef, attributeID uuid.UUID, changedAt int64, deletedAt *int64) error {
	if s.tables.changeLog == "" {
		return nil
	}
	flushedAt := int64(0)
	query := fmt.Sprintf(
		`INSERT INTO %s (entity_ct, entity_id, attribute_id, flushed_at, changed_at, deleted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (entity_ct, entity_id, attribute_id, flushed_at)
			DO UPDATE SET changed_at = EXCLUDED.changed_at, deleted_at = EXCLUDED.deleted_at`,
		s.tables.changeLog,
	)
	var deleted any
	if deletedAt != nil {
		deleted = *deletedAt
	}
	if _, err := tx.Exec(ctx, query, ref.Type, ref.ID, attributeID, flushedAt, changedAt, deleted); err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}
