package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const subjectContextKey = "connections:subject"

// requireSubject rejects requests without the trusted identity header.
func (h *Handler) requireSubject(c *gin.Context) {
	subject := strings.TrimSpace(c.GetHeader(SubjectHeader))
	if subject == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

func subjectFrom(c *gin.Context) string {
	if value, ok := c.Get(subjectContextKey); ok {
		if subject, ok := value.(string); ok {
			return subject
		}
	}
	return strings.TrimSpace(c.GetHeader(SubjectHeader))
}
