package facet

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatatypeStorageField(t *testing.T) {
	cases := []struct {
		datatype Datatype
		column   string
	}{
		{DatatypeText, "value_text"},
		{DatatypeFloat, "value_float"},
		{DatatypeDate, "value_date"},
		{DatatypeBoolean, "value_bool"},
		{DatatypeObject, "value_object_id"},
		{DatatypeEnum, "value_enum_id"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.column, tc.datatype.StorageField())
		assert.True(t, tc.datatype.Valid())
	}

	assert.Equal(t, "", Datatype("json").StorageField())
	assert.False(t, Datatype("json").Valid())
}

func TestParseDatatype(t *testing.T) {
	d, err := ParseDatatype("enum")
	require.NoError(t, err)
	assert.Equal(t, DatatypeEnum, d)

	_, err = ParseDatatype("integer")
	assert.Error(t, err)
}

func TestPayloadDatatypes(t *testing.T) {
	ref := EntityRef{Type: "catalog.product", ID: uuid.New()}

	cases := []struct {
		payload  Payload
		datatype Datatype
	}{
		{Text("hello"), DatatypeText},
		{Float(19.99), DatatypeFloat},
		{Bool(true), DatatypeBoolean},
		{NewDate(2024, time.March, 14), DatatypeDate},
		{Object(ref), DatatypeObject},
		{Choice{ID: uuid.New(), Value: "Yes"}, DatatypeEnum},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.datatype, tc.payload.Datatype())
	}
}

func TestDateParseAndFormat(t *testing.T) {
	d, err := ParseDate("2024-03-14")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.March, 14), d)
	assert.Equal(t, "2024-03-14", d.String())
	assert.Equal(t, time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC), d.Time())

	_, err = ParseDate("14/03/2024")
	assert.Error(t, err)
	_, err = ParseDate("2024-13-40")
	assert.Error(t, err)
}

func TestDateOfUsesOwnLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	// 00:30 on the 15th in +05 is still the 14th in UTC; the calendar date
	// keeps the wall-clock day.
	d := DateOf(time.Date(2024, time.March, 15, 0, 30, 0, 0, loc))
	assert.Equal(t, NewDate(2024, time.March, 15), d)
}

func TestEntityRefString(t *testing.T) {
	id := uuid.MustParse("f81d4fae-7dec-11d0-a765-00a0c91e6bf6")
	ref := EntityRef{Type: "clinic.patient", ID: id}
	assert.Equal(t, "clinic.patient/f81d4fae-7dec-11d0-a765-00a0c91e6bf6", ref.String())
	assert.False(t, ref.IsZero())
	assert.True(t, EntityRef{}.IsZero())
}

func TestEnumGroupContains(t *testing.T) {
	g := &EnumGroup{
		Name: "Yes / No / Unknown",
		Values: []EnumValue{
			{ID: uuid.New(), Value: "Yes"},
			{ID: uuid.New(), Value: "No"},
		},
	}
	assert.True(t, g.Contains("Yes"))
	assert.False(t, g.Contains("yes"))
	assert.False(t, g.Contains("Unknown"))
}
