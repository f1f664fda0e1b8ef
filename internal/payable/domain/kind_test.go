package domain

import (
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Banners ")
	require.NoError(t, err)
	assert.Equal(t, KindBanner, kind)

	_, err = ParseKind("coupon")
	assert.True(t, errors.Is(err, ErrInvalidKind))
}

func TestExternalReferenceRoundTrip(t *testing.T) {
	ref := ExternalReference(KindSubscription, snowflake.ID(42))
	assert.Equal(t, "subscription:42", ref)

	kind, id, err := ParseExternalReference(ref, nil)
	require.NoError(t, err)
	assert.Equal(t, KindSubscription, kind)
	assert.Equal(t, snowflake.ID(42), id)
}

func TestParseExternalReferenceFromMetadata(t *testing.T) {
	cases := []struct {
		name     string
		ref      string
		metadata map[string]any
		kind     Kind
		id       snowflake.ID
	}{
		{name: "bare id with type", ref: "77", metadata: map[string]any{"type": "order"}, kind: KindOrder, id: 77},
		{name: "metadata only", ref: "", metadata: map[string]any{"type": "banner", "resource_id": "91"}, kind: KindBanner, id: 91},
		{name: "numeric metadata id", ref: "", metadata: map[string]any{"type": "banner", "resource_id": float64(15)}, kind: KindBanner, id: 15},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, id, err := ParseExternalReference(tc.ref, tc.metadata)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.id, id)
		})
	}
}

func TestParseExternalReferenceRejectsUnknown(t *testing.T) {
	cases := []struct {
		name     string
		ref      string
		metadata map[string]any
	}{
		{name: "unknown prefix", ref: "coupon:1"},
		{name: "bare id without type", ref: "12"},
		{name: "unknown metadata type", ref: "12", metadata: map[string]any{"type": "gift"}},
		{name: "garbage id", ref: "banner:abc"},
		{name: "empty", ref: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseExternalReference(tc.ref, tc.metadata)
			assert.True(t, errors.Is(err, ErrUnresolvableReference), "got %v", err)
		})
	}
}
