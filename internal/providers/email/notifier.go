package email

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier delivers templated mail to the owner of a resource.
type Notifier struct {
	db       *gorm.DB
	provider Provider
	log      *zap.Logger
}

func NewNotifier(db *gorm.DB, provider Provider, log *zap.Logger) *Notifier {
	return &Notifier{db: db, provider: provider, log: log.Named("email.notifier")}
}

// Send reports whether the mail was handed to the provider. Failures are
// logged, never returned.
func (n *Notifier) Send(ctx context.Context, ownerID snowflake.ID, templateName string, payload map[string]any) bool {
	address, err := n.lookupEmail(ctx, ownerID)
	if err != nil {
		n.log.Warn("notification recipient not resolved",
			zap.String("owner_id", ownerID.String()),
			zap.String("template", templateName),
			zap.Error(err),
		)
		return false
	}

	if err := n.provider.SendTemplate(ctx, []string{address}, templateName, payload); err != nil {
		n.log.Warn("notification delivery failed",
			zap.String("owner_id", ownerID.String()),
			zap.String("template", templateName),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (n *Notifier) lookupEmail(ctx context.Context, ownerID snowflake.ID) (string, error) {
	var address string
	err := n.db.WithContext(ctx).
		Table("users").
		Select("email").
		Where("id = ?", ownerID).
		Limit(1).
		Scan(&address).Error
	if err != nil {
		return "", err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("owner_email_not_found")
	}
	return address, nil
}
