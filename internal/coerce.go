package internal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openfacet/facet"
)

// Integers beyond 2^53 lose precision in a float64; coercion is exact or
// refused.
const maxExactFloatInt = int64(1) << 53

// coercePayload converts loose native input into the typed payload for the
// attribute's datatype. Enum input is resolved by the value store, which
// holds the choice catalog.
func coercePayload(attr *facet.Attribute, native any) (facet.Payload, error) {
	switch attr.Datatype {
	case facet.DatatypeText:
		return toTextPayload(attr.Slug, native)
	case facet.DatatypeFloat:
		return toFloatPayload(attr.Slug, native)
	case facet.DatatypeDate:
		return toDatePayload(attr.Slug, native)
	case facet.DatatypeBoolean:
		return toBoolPayload(attr.Slug, native)
	case facet.DatatypeObject:
		return toObjectPayload(attr.Slug, native)
	default:
		return nil, facet.NewConfigurationError(fmt.Sprintf("unsupported datatype %q", attr.Datatype))
	}
}

func toTextPayload(slug string, native any) (facet.Text, error) {
	switch v := native.(type) {
	case facet.Text:
		return v, nil
	case string:
		return facet.Text(v), nil
	case []byte:
		return facet.Text(v), nil
	case fmt.Stringer:
		return facet.Text(v.String()), nil
	default:
		return "", facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %T to text", native))
	}
}

func toFloatPayload(slug string, native any) (facet.Float, error) {
	var f float64
	switch v := native.(type) {
	case facet.Float:
		f = float64(v)
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		return toFloatPayload(slug, int64(v))
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		if v > maxExactFloatInt || v < -maxExactFloatInt {
			return 0, facet.NewTypeMismatchError(slug, fmt.Sprintf("integer %d exceeds the exact float range", v))
		}
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %q to float", v.String()))
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %q to float", v))
		}
		f = parsed
	default:
		return 0, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %T to float", native))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, facet.NewTypeMismatchError(slug, "float value must be finite")
	}
	return facet.Float(f), nil
}

func toBoolPayload(slug string, native any) (facet.Bool, error) {
	switch v := native.(type) {
	case facet.Bool:
		return v, nil
	case bool:
		return facet.Bool(v), nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, facet.NewTypeMismatchError(slug, fmt.Sprintf("%q is not a boolean literal", v))
		}
		return facet.Bool(parsed), nil
	case int:
		return intToBool(slug, int64(v))
	case int64:
		return intToBool(slug, v)
	default:
		return false, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %T to bool", native))
	}
}

func intToBool(slug string, v int64) (facet.Bool, error) {
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, facet.NewTypeMismatchError(slug, fmt.Sprintf("integer %d is not a boolean literal", v))
}

func toDatePayload(slug string, native any) (facet.Date, error) {
	switch v := native.(type) {
	case facet.Date:
		// Reject impossible component combinations like Feb 30 that
		// time.Date would silently normalize.
		if facet.DateOf(v.Time()) != v {
			return facet.Date{}, facet.NewTypeMismatchError(slug,
				fmt.Sprintf("%04d-%02d-%02d is not a calendar date", v.Year, int(v.Month), v.Day))
		}
		return v, nil
	case time.Time:
		// No silent truncation: a timestamp carrying a time of day is
		// refused rather than rounded down.
		hour, minute, sec := v.Clock()
		if hour != 0 || minute != 0 || sec != 0 || v.Nanosecond() != 0 {
			return facet.Date{}, facet.NewTypeMismatchError(slug, "timestamp carries a time of day; dates store calendar days only")
		}
		return facet.DateOf(v), nil
	case *time.Time:
		if v == nil {
			return facet.Date{}, facet.NewTypeMismatchError(slug, "nil time pointer")
		}
		return toDatePayload(slug, *v)
	case string:
		parsed, err := facet.ParseDate(strings.TrimSpace(v))
		if err != nil {
			return facet.Date{}, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %q to date", v)).WithCause(err)
		}
		return parsed, nil
	default:
		return facet.Date{}, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %T to date", native))
	}
}

func toObjectPayload(slug string, native any) (facet.Object, error) {
	var obj facet.Object
	switch v := native.(type) {
	case facet.Object:
		obj = v
	case facet.EntityRef:
		obj = facet.Object(v)
	case *facet.EntityRef:
		if v == nil {
			return facet.Object{}, facet.NewTypeMismatchError(slug, "nil entity reference")
		}
		obj = facet.Object(*v)
	default:
		return facet.Object{}, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %T to an object reference", native))
	}
	if obj.Type == "" || obj.ID == uuid.Nil {
		return facet.Object{}, facet.NewTypeMismatchError(slug, "object reference needs a content type and id")
	}
	return obj, nil
}

// enumInput normalizes enum input to either a concrete value id or a label
// the store resolves against the group membership.
func enumInput(slug string, native any) (label string, id uuid.UUID, err error) {
	switch v := native.(type) {
	case facet.Choice:
		if v.ID == uuid.Nil {
			return v.Value, uuid.Nil, nil
		}
		return v.Value, v.ID, nil
	case facet.EnumValue:
		return v.Value, v.ID, nil
	case *facet.EnumValue:
		if v == nil {
			return "", uuid.Nil, facet.NewTypeMismatchError(slug, "nil enum value")
		}
		return v.Value, v.ID, nil
	case string:
		return v, uuid.Nil, nil
	case []byte:
		return string(v), uuid.Nil, nil
	default:
		return "", uuid.Nil, facet.NewTypeMismatchError(slug, fmt.Sprintf("cannot coerce %T to an enum choice", native))
	}
}
