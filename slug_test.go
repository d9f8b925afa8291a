package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "Color", "color"},
		{"spaces", "Goes to School", "goes_to_school"},
		{"hyphens", "has-fever", "has_fever"},
		{"mixed separators", "Has  Fever -- Today", "has_fever_today"},
		{"already slug", "unit_price", "unit_price"},
		{"punctuation dropped", "Weight (kg)", "weight_kg"},
		{"apostrophe dropped", "Owner's Name", "owners_name"},
		{"digits kept", "ISO 3166 Code", "iso_3166_code"},
		{"leading separators", "  Leading", "leading"},
		{"trailing separators", "Trailing  ", "trailing"},
		{"uppercase", "SKU", "sku"},
		{"non-ascii dropped", "Größe", "gre"},
		{"empty", "", ""},
		{"only punctuation", "!!!", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Slugify(tc.input))
		})
	}
}

func TestSlugifyDeterministic(t *testing.T) {
	assert.Equal(t, Slugify("Has Fever"), Slugify("Has Fever"))
}

func TestSlugifyIdempotent(t *testing.T) {
	once := Slugify("Goes to School")
	assert.Equal(t, once, Slugify(once))
}
