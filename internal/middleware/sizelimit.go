package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// defaultMaxBodyBytes bounds request bodies. The largest legitimate payload
// is a configuration replacement, well under this.
const defaultMaxBodyBytes = 1 << 20

// BodyLimit rejects oversized request bodies before handlers read them.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
