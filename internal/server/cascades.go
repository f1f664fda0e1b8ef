package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	cascadedomain "github.com/smallbiznis/marketpay/internal/cascade/domain"
)

func (s *Server) ReplayCascade(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	job, err := s.cascadeSvc.Replay(c.Request.Context(), cascadedomain.ReplayRequest{
		JobID: id,
		Actor: actorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": job})
}
