package internal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfacet/facet"
)

var (
	testEntityID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testAttrID   = uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
)

func testValueStore(t *testing.T, mock pgxmock.PgxPoolIface, fixed time.Time) *PostgresValueStore {
	t.Helper()
	store := NewPostgresValueStore(mock, testTables(t))
	store.withClock(func() time.Time { return fixed })
	return store
}

func TestValueSetFloat(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	fixed := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	fixedMillis := fixed.UnixMilli()
	store := testValueStore(t, mock, fixed)

	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "age", Datatype: facet.DatatypeFloat}
	age := 42.5
	rowID := uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")

	mock.ExpectBegin()
	mock.ExpectQuery(`^INSERT INTO "eav_value"`).
		WithArgs(
			pgxmock.AnyArg(), "patient", testEntityID, testAttrID,
			(*string)(nil), &age, (*time.Time)(nil), (*bool)(nil), (*string)(nil), (*uuid.UUID)(nil), (*uuid.UUID)(nil),
			fixedMillis, fixedMillis,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(rowID, int64(111)))
	mock.ExpectExec(`^INSERT INTO "eav_change_log"`).
		WithArgs("patient", testEntityID, testAttrID, int64(0), fixedMillis, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	value, err := store.Set(ctx, ref, attr, 42.5)
	require.NoError(t, err)
	assert.Equal(t, facet.Float(42.5), value.Payload)
	// the surviving row keeps its identity and creation stamp on update
	assert.Equal(t, rowID, value.ID)
	assert.Equal(t, int64(111), value.CreatedAt)
	assert.Equal(t, fixedMillis, value.UpdatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueSetRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "age", Datatype: facet.DatatypeFloat}

	_, err = store.Set(ctx, ref, nil, 1.0)
	assert.True(t, facet.IsConfigurationError(err))

	_, err = store.Set(ctx, facet.EntityRef{}, attr, 1.0)
	assert.True(t, facet.IsConfigurationError(err))

	_, err = store.Set(ctx, ref, attr, nil)
	assert.True(t, facet.IsTypeMismatchError(err))

	_, err = store.Set(ctx, ref, attr, "not a number")
	assert.True(t, facet.IsTypeMismatchError(err))

	// nothing reached the database
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueSetUniqueProbePasses(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	fixed := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	fixedMillis := fixed.UnixMilli()
	store := testValueStore(t, mock, fixed)

	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "ssn", Datatype: facet.DatatypeText, Unique: true}
	ssn := "078-05-1120"

	mock.ExpectBegin()
	mock.ExpectExec(`^SELECT pg_advisory_xact_lock\(\$1\)$`).
		WithArgs(lockKey(testAttrID)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`^SELECT entity_ct, entity_id FROM "eav_value" WHERE attribute_id = \$1 AND value_text = \$2`).
		WithArgs(testAttrID, ssn, "patient", testEntityID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`^INSERT INTO "eav_value"`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.Must(uuid.NewV7()), fixedMillis))
	mock.ExpectExec(`^INSERT INTO "eav_change_log"`).
		WithArgs("patient", testEntityID, testAttrID, int64(0), fixedMillis, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	_, err = store.Set(ctx, ref, attr, ssn)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueSetUniqueCollision(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	store := testValueStore(t, mock, time.Now())

	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "ssn", Datatype: facet.DatatypeText, Unique: true}
	otherID := uuid.MustParse("dddddddd-dddd-dddd-dddd-dddddddddddd")

	mock.ExpectBegin()
	mock.ExpectExec(`^SELECT pg_advisory_xact_lock\(\$1\)$`).
		WithArgs(lockKey(testAttrID)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(`^SELECT entity_ct, entity_id FROM "eav_value"`).
		WithArgs(testAttrID, "078-05-1120", "patient", testEntityID).
		WillReturnRows(pgxmock.NewRows([]string{"entity_ct", "entity_id"}).AddRow("patient", otherID))
	mock.ExpectRollback()

	_, err = store.Set(ctx, ref, attr, "078-05-1120")
	require.True(t, facet.IsUniquenessError(err))
	assert.Contains(t, err.Error(), "already assigned to patient/"+otherID.String())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueSetEnum(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	fixed := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	fixedMillis := fixed.UnixMilli()
	store := testValueStore(t, mock, fixed)

	groupID := uuid.MustParse("eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee")
	choiceID := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "has_fever", Datatype: facet.DatatypeEnum, EnumGroupID: &groupID}

	// label resolves against group membership before the write transaction
	mock.ExpectQuery(`^SELECT v.id, v.value FROM "eav_enum_value" v JOIN "eav_enum_group_values" m`).
		WithArgs(groupID, "No").
		WillReturnRows(pgxmock.NewRows([]string{"id", "value"}).AddRow(choiceID, "No"))
	mock.ExpectBegin()
	mock.ExpectQuery(`^INSERT INTO "eav_value"`).
		WithArgs(
			pgxmock.AnyArg(), "patient", testEntityID, testAttrID,
			(*string)(nil), (*float64)(nil), (*time.Time)(nil), (*bool)(nil), (*string)(nil), (*uuid.UUID)(nil), &choiceID,
			fixedMillis, fixedMillis,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.Must(uuid.NewV7()), fixedMillis))
	mock.ExpectExec(`^INSERT INTO "eav_change_log"`).
		WithArgs("patient", testEntityID, testAttrID, int64(0), fixedMillis, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	value, err := store.Set(ctx, ref, attr, "No")
	require.NoError(t, err)
	assert.Equal(t, facet.Choice{ID: choiceID, Value: "No"}, value.Payload)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueSetEnumInvalidChoice(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())

	groupID := uuid.MustParse("eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee")
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "has_fever", Datatype: facet.DatatypeEnum, EnumGroupID: &groupID}

	mock.ExpectQuery(`^SELECT v.id, v.value FROM "eav_enum_value" v JOIN "eav_enum_group_values" m`).
		WithArgs(groupID, "Perhaps").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Set(ctx, ref, attr, "Perhaps")
	require.True(t, facet.IsInvalidChoiceError(err))
	assert.Contains(t, err.Error(), `"Perhaps" is not a choice`)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueSetEnumWithoutGroup(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "has_fever", Datatype: facet.DatatypeEnum}

	_, err = store.Set(ctx, ref, attr, "No")
	require.True(t, facet.IsConfigurationError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueGet(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "age", Datatype: facet.DatatypeFloat}
	age := 42.5

	getCols := []string{
		"value_text", "value_float", "value_date", "value_bool",
		"value_object_ct", "value_object_id", "value_enum_id", "value",
	}

	mock.ExpectQuery(`^SELECT r.value_text, r.value_float`).
		WithArgs("patient", testEntityID, testAttrID).
		WillReturnRows(pgxmock.NewRows(getCols).AddRow(
			(*string)(nil), &age, (*time.Time)(nil), (*bool)(nil),
			(*string)(nil), (*uuid.UUID)(nil), (*uuid.UUID)(nil), (*string)(nil),
		))

	payload, found, err := store.Get(ctx, ref, attr)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, facet.Float(42.5), payload)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueGetAbsent(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "age", Datatype: facet.DatatypeFloat}

	mock.ExpectQuery(`^SELECT r.value_text, r.value_float`).
		WithArgs("patient", testEntityID, testAttrID).
		WillReturnError(pgx.ErrNoRows)

	payload, found, err := store.Get(ctx, ref, attr)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, payload)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueGetEnumCarriesLabel(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	groupID := uuid.MustParse("eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee")
	choiceID := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	label := "No"
	attr := &facet.Attribute{ID: testAttrID, Slug: "has_fever", Datatype: facet.DatatypeEnum, EnumGroupID: &groupID}

	getCols := []string{
		"value_text", "value_float", "value_date", "value_bool",
		"value_object_ct", "value_object_id", "value_enum_id", "value",
	}
	mock.ExpectQuery(`^SELECT r.value_text, r.value_float`).
		WithArgs("patient", testEntityID, testAttrID).
		WillReturnRows(pgxmock.NewRows(getCols).AddRow(
			(*string)(nil), (*float64)(nil), (*time.Time)(nil), (*bool)(nil),
			(*string)(nil), (*uuid.UUID)(nil), &choiceID, &label,
		))

	payload, found, err := store.Get(ctx, ref, attr)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, facet.Choice{ID: choiceID, Value: "No"}, payload)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueGetRowAuthoritative(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	// the definition says float now, but the row predates that change
	attr := &facet.Attribute{ID: testAttrID, Slug: "age", Datatype: facet.DatatypeFloat}
	stale := "seven"

	getCols := []string{
		"value_text", "value_float", "value_date", "value_bool",
		"value_object_ct", "value_object_id", "value_enum_id", "value",
	}
	mock.ExpectQuery(`^SELECT r.value_text, r.value_float`).
		WithArgs("patient", testEntityID, testAttrID).
		WillReturnRows(pgxmock.NewRows(getCols).AddRow(
			&stale, (*float64)(nil), (*time.Time)(nil), (*bool)(nil),
			(*string)(nil), (*uuid.UUID)(nil), (*uuid.UUID)(nil), (*string)(nil),
		))

	payload, found, err := store.Get(ctx, ref, attr)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, facet.Text("seven"), payload)
	assert.NotEqual(t, attr.Datatype, payload.Datatype())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueClear(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	fixed := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	fixedMillis := fixed.UnixMilli()
	store := testValueStore(t, mock, fixed)

	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "city", Datatype: facet.DatatypeText}

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM "eav_value" WHERE entity_ct = \$1 AND entity_id = \$2 AND attribute_id = \$3$`).
		WithArgs("patient", testEntityID, testAttrID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`^INSERT INTO "eav_change_log"`).
		WithArgs("patient", testEntityID, testAttrID, int64(0), fixedMillis, fixedMillis).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.Clear(ctx, ref, attr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueClearAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "city", Datatype: facet.DatatypeText}

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM "eav_value"`).
		WithArgs("patient", testEntityID, testAttrID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.Clear(ctx, ref, attr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueClearRequiredRefused(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := testValueStore(t, mock, time.Now())
	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "age", Datatype: facet.DatatypeFloat, Required: true}

	err = store.Clear(ctx, ref, attr)
	require.True(t, facet.IsRequiredFieldError(err))

	// refused before any database work
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueDeleteForEntity(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	fixed := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	fixedMillis := fixed.UnixMilli()
	store := testValueStore(t, mock, fixed)

	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr1 := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	attr2 := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	mock.ExpectBegin()
	mock.ExpectQuery(`^DELETE FROM "eav_value" WHERE entity_ct = \$1 AND entity_id = \$2 RETURNING attribute_id$`).
		WithArgs("patient", testEntityID).
		WillReturnRows(pgxmock.NewRows([]string{"attribute_id"}).AddRow(attr1).AddRow(attr2))
	mock.ExpectExec(`^INSERT INTO "eav_change_log"`).
		WithArgs("patient", testEntityID, attr1, int64(0), fixedMillis, fixedMillis).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`^INSERT INTO "eav_change_log"`).
		WithArgs("patient", testEntityID, attr2, int64(0), fixedMillis, fixedMillis).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	count, err := store.DeleteForEntity(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValueSetChangeFeedDisabled(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	names := facet.DefaultConfig().Database.TableNames
	tables, err := resolveTables(facet.NewStaticResolver(names), "")
	require.NoError(t, err)

	fixed := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	store := NewPostgresValueStore(mock, tables)
	store.withClock(func() time.Time { return fixed })

	ref := facet.EntityRef{Type: "patient", ID: testEntityID}
	attr := &facet.Attribute{ID: testAttrID, Slug: "age", Datatype: facet.DatatypeFloat}

	mock.ExpectBegin()
	mock.ExpectQuery(`^INSERT INTO "eav_value"`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(uuid.Must(uuid.NewV7()), fixed.UnixMilli()))
	mock.ExpectCommit()
	mock.ExpectRollback()

	_, err = store.Set(ctx, ref, attr, 1.5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
