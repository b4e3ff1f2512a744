package middleware

import (
	"net/http"
	"time"

	"callcast/internal/repository"

	"github.com/gin-gonic/gin"
)

const minAge = 18

// RegisteredAdult requires a finished initial registration and a birthday at
// least minAge years back. Use after AuthRequired.
func RegisteredAdult(members *repository.MemberRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		m, err := members.GetByID(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if m.IsAdmin() {
			c.Next()
			return
		}
		if !m.IsRegistered || m.Birthday == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "registration incomplete"})
			return
		}
		if ageAt(*m.Birthday, time.Now()) < minAge {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "must be 18 or older"})
			return
		}
		c.Next()
	}
}

func ageAt(birthday, now time.Time) int {
	age := now.Year() - birthday.Year()
	if now.YearDay() < birthday.YearDay() {
		age--
	}
	return age
}
