package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source Source
		want   string
	}{
		{SourceUser, "user"},
		{SourceAuto, "auto"},
		{SourceFoursquare, "foursquare"},
		{SourceVerified, "verified"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.source))
		})
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	c, ok := ParseCategory("lumber")
	assert.True(t, ok)
	assert.Equal(t, CategoryLumber, c)

	_, ok = ParseCategory("unknown")
	assert.False(t, ok, "unknown is a classification result, not a searchable category")

	_, ok = ParseCategory("bakery")
	assert.False(t, ok)
}

func TestStore_ExternalID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Store{}.ExternalID())
	assert.Equal(t, "P123", Store{PlaceID: StringPtr("P123")}.ExternalID())
	assert.Nil(t, StringPtr(""))
}
