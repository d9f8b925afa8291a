package facet

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payload is the typed value carried by one stored Value row. Exactly one
// concrete payload type exists per Datatype, so "exactly one column
// populated" is carried by the type system rather than six optional fields.
type Payload interface {
	Datatype() Datatype
}

// Text is the payload of a text attribute.
type Text string

func (Text) Datatype() Datatype { return DatatypeText }

func (t Text) String() string { return string(t) }

// Float is the payload of a float attribute.
type Float float64

func (Float) Datatype() Datatype { return DatatypeFloat }

func (f Float) String() string { return fmt.Sprintf("%g", float64(f)) }

// Bool is the payload of a boolean attribute. Absence of a row is the
// third state of the tri-state contract.
type Bool bool

func (Bool) Datatype() Datatype { return DatatypeBoolean }

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Date is a calendar date with no time-of-day and no location.
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

func (Date) Datatype() Datatype { return DatatypeDate }

// NewDate builds a Date from calendar components. Components are not
// normalized; ParseDate and DateOf are the validating constructors.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf extracts the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses a 2006-01-02 string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

// Object is the payload of an object attribute: an opaque reference to a
// row owned by the host application, typed by its content tag.
type Object EntityRef

func (Object) Datatype() Datatype { return DatatypeObject }

func (o Object) String() string { return EntityRef(o).String() }

// Choice is the payload of an enum attribute: a reference to the selected
// EnumValue.
type Choice struct {
	ID    uuid.UUID `json:"id"`
	Value string    `json:"value"`
}

func (Choice) Datatype() Datatype { return DatatypeEnum }

func (c Choice) String() string { return c.Value }
