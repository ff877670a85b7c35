package middleware

import (
	"github.com/gin-gonic/gin"

	"kardex/internal/core/apperror"
	appctx "kardex/internal/core/context"
	"kardex/internal/core/id"
)

const HeaderOwnerID = "X-Owner-ID"

// Owner resolves the book the request acts for from the X-Owner-ID header.
// Requests without a valid owner are rejected.
func Owner() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderOwnerID)
		if raw == "" {
			_ = c.Error(apperror.NewValidation("owner header is required").WithDetail("header", HeaderOwnerID))
			c.Abort()
			return
		}
		ownerID, err := id.Parse(raw)
		if err != nil || id.IsNil(ownerID) {
			_ = c.Error(apperror.NewValidation("invalid owner id").WithDetail("header", HeaderOwnerID))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithOwner(c.Request.Context(), ownerID))
		c.Next()
	}
}
