package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttributeString(t *testing.T) {
	attr := &Attribute{Name: "Age", Datatype: DatatypeFloat}
	assert.Equal(t, "Age (float)", attr.String())
}

func TestAttributeStorageField(t *testing.T) {
	assert.Equal(t, "value_float", (&Attribute{Datatype: DatatypeFloat}).StorageField())
	assert.Equal(t, "value_enum_id", (&Attribute{Datatype: DatatypeEnum}).StorageField())
}

func TestEnumValueString(t *testing.T) {
	v := &EnumValue{Value: "Admitted"}
	assert.Equal(t, "Admitted", v.String())
}
