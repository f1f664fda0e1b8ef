package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Kind names a payable resource family.
type Kind string

const (
	KindSubscription Kind = "subscription"
	KindBanner       Kind = "banner"
	KindOrder        Kind = "order"
)

// Kinds lists every payable family in a stable order.
var Kinds = []Kind{KindSubscription, KindBanner, KindOrder}

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindSubscription, "subscriptions":
		return KindSubscription, nil
	case KindBanner, "banners":
		return KindBanner, nil
	case KindOrder, "orders":
		return KindOrder, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Table returns the relational table backing the kind.
func (k Kind) Table() string {
	switch k {
	case KindSubscription:
		return "subscriptions"
	case KindBanner:
		return "banners"
	case KindOrder:
		return "orders"
	default:
		return ""
	}
}

// SuccessState is the state an approved payment moves a PENDING resource into.
func (k Kind) SuccessState() State {
	if k == KindOrder {
		return StatePaid
	}
	return StateActive
}

// ExternalReference encodes the resource identity attached to a gateway payment.
func ExternalReference(kind Kind, id snowflake.ID) string {
	return string(kind) + ":" + id.String()
}

// ParseExternalReference resolves the resource a payment belongs to.
// It accepts "kind:id", or a bare id paired with a metadata type, or
// metadata carrying both type and resource_id.
func ParseExternalReference(ref string, metadata map[string]any) (Kind, snowflake.ID, error) {
	ref = strings.TrimSpace(ref)
	metaKind := metadataString(metadata, "type")

	if kindPart, idPart, ok := strings.Cut(ref, ":"); ok {
		kind, err := ParseKind(kindPart)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrUnresolvableReference, err)
		}
		id, err := parseID(idPart)
		if err != nil {
			return "", 0, err
		}
		return kind, id, nil
	}

	if metaKind == "" {
		return "", 0, fmt.Errorf("%w: missing resource type", ErrUnresolvableReference)
	}
	kind, err := ParseKind(metaKind)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrUnresolvableReference, err)
	}

	rawID := ref
	if rawID == "" {
		rawID = metadataString(metadata, "resource_id")
	}
	id, err := parseID(rawID)
	if err != nil {
		return "", 0, err
	}
	return kind, id, nil
}

func parseID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing resource id", ErrUnresolvableReference)
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid resource id %q", ErrUnresolvableReference, raw)
	}
	return id, nil
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	switch v := metadata[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
