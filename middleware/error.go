package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// ErrorHandler recovers from panics and answers errors attached with c.Error.
// An attached error may carry its HTTP status as an int in Meta.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v\nStack trace:\n%s", err, debug.Stack())

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Analysis failed: an unexpected error occurred",
				})
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last()
		status := http.StatusInternalServerError
		if code, ok := last.Meta.(int); ok {
			status = code
		}

		log.Printf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, last.Err)
		c.JSON(status, gin.H{
			"error": last.Error(),
		})
	}
}
