package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sentra-platform/incident-api/internal/middleware"
	"github.com/sentra-platform/incident-api/internal/models"
	"github.com/sentra-platform/incident-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func principalFromContext(c *gin.Context) (service.Principal, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Principal{}, false
	}
	return service.Principal{ID: claims.UserID, Role: claims.Role}, true
}
