package api

import (
	"log"
	"strings"

	"studyhub/internal/api/handlers"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CORSMiddleware adds CORS headers to allow cross-origin requests from the frontend
func CORSMiddleware(frontendURL string) gin.HandlerFunc {
	if frontendURL == "" {
		frontendURL = "http://localhost:5173"
	}
	// Trim trailing slash if present before setting the header
	origin := strings.TrimSuffix(frontendURL, "/")

	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// LearnerSession makes sure every visitor carries an anonymous learner id.
// A missing or malformed id in the session is replaced with a fresh UUID.
// The id is exposed to handlers under handlers.LearnerContextKey.
func LearnerSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, _ := session.Get(handlers.LearnerSessionKey).(string)

		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			session.Set(handlers.LearnerSessionKey, id)
			if err := session.Save(); err != nil {
				log.Printf("WARN: LearnerSession could not save session: %v", err)
			} else {
				log.Printf("INFO: LearnerSession issued new learner id %s", id)
			}
		}

		c.Set(handlers.LearnerContextKey, id)
		c.Next()
	}
}
