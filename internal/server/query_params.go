package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
)

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if raw == "" || err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}

func parseKindParam(c *gin.Context) (payabledomain.Kind, error) {
	kind, err := payabledomain.ParseKind(c.Param("kind"))
	if err != nil {
		return "", newValidationError("kind", "invalid_kind", "kind must be subscription, banner or order")
	}
	return kind, nil
}

func parseOwnerID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, newValidationError("owner_id", "invalid_owner_id", "invalid owner_id")
	}
	return id, nil
}
