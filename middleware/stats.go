package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/seocheck/logging"
)

// PageURLKey is the context key analysis handlers store the analyzed URL under
const PageURLKey = "pageURL"

// saveEvery persists the statistics after this many analysis requests
const saveEvery = 100

// Stats tracks visitors and the duration and outcome of analysis requests
func Stats(stats *logging.Statistics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		stats.TrackVisitor(c.ClientIP())

		c.Next()

		if c.Request.Method != http.MethodPost || !strings.HasPrefix(c.FullPath(), "/api/analyze") {
			return
		}

		duration := float64(time.Since(start).Milliseconds())
		stats.TrackAnalysis(c.GetString(PageURLKey), duration, c.Writer.Status() >= 400)

		if stats.TotalRequests()%saveEvery == 0 {
			go func() {
				if err := stats.Save(); err != nil {
					log.Printf("Failed to save statistics: %v", err)
				}
			}()
		}
	}
}
