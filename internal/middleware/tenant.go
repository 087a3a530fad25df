package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classforge/mastery-engine/internal/tenancy"
	appErrors "github.com/classforge/mastery-engine/pkg/errors"
	"github.com/classforge/mastery-engine/pkg/response"
)

const (
	// TenantHeader carries the school identifier resolved by the host
	// application's auth layer.
	TenantHeader = "X-Tenant-ID"
	// ActorHeader carries the acting user identifier, when known.
	ActorHeader = "X-Actor-ID"
)

// Tenant requires a tenant header on every request and places the tenant
// (and actor, when present) on the request context.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing tenant header"))
			c.Abort()
			return
		}
		ctx := tenancy.WithTenant(c.Request.Context(), tenantID)
		if actorID := strings.TrimSpace(c.GetHeader(ActorHeader)); actorID != "" {
			ctx = tenancy.WithActor(ctx, actorID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
