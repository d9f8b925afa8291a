package facet

import "fmt"

// Datatype selects the storage column and coercion path of an Attribute.
type Datatype string

const (
	DatatypeText    Datatype = "text"
	DatatypeFloat   Datatype = "float"
	DatatypeDate    Datatype = "date"
	DatatypeBoolean Datatype = "bool"
	DatatypeObject  Datatype = "object"
	DatatypeEnum    Datatype = "enum"
)

// Storage column names, one per datatype. The object column carries a
// companion type-tag column (value_object_ct) so references stay resolvable
// across host tables.
const (
	ColumnText     = "value_text"
	ColumnFloat    = "value_float"
	ColumnDate     = "value_date"
	ColumnBool     = "value_bool"
	ColumnObjectID = "value_object_id"
	ColumnEnum     = "value_enum_id"
)

// Valid reports whether d is one of the declared datatypes.
func (d Datatype) Valid() bool {
	switch d {
	case DatatypeText, DatatypeFloat, DatatypeDate, DatatypeBoolean, DatatypeObject, DatatypeEnum:
		return true
	}
	return false
}

// StorageField returns the value column populated for this datatype.
// Pure mapping, no side effects.
func (d Datatype) StorageField() string {
	switch d {
	case DatatypeText:
		return ColumnText
	case DatatypeFloat:
		return ColumnFloat
	case DatatypeDate:
		return ColumnDate
	case DatatypeBoolean:
		return ColumnBool
	case DatatypeObject:
		return ColumnObjectID
	case DatatypeEnum:
		return ColumnEnum
	}
	return ""
}

func (d Datatype) String() string {
	return string(d)
}

// ParseDatatype converts a wire/document string into a Datatype.
func ParseDatatype(s string) (Datatype, error) {
	d := Datatype(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown datatype %q", s)
	}
	return d, nil
}
