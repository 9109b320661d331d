package rest_api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/engine"
)

const userKey = "authenticated_user"

// HashPassword returns the hex sha256 digest stored on user records.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// basicAuth authenticates HTTP Basic credentials against the user records:
// either username:password, or the user's API token as the username with an
// empty password.
func basicAuth(srv *engine.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="grader"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}
		var id grader.UUID
		var user map[string]string
		var err error
		if password == "" {
			id, user, err = srv.FindUserByToken(c.Request.Context(), username)
		} else {
			id, user, err = srv.FindUserByUsername(c.Request.Context(), username)
			if err == nil {
				stored := []byte(user[engine.FieldPassword])
				given := []byte(HashPassword(password))
				if subtle.ConstantTimeCompare(stored, given) != 1 {
					err = grader.Error{Code: grader.Unauthenticated}
				}
			}
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "bad credentials"})
			return
		}
		c.Set(userKey, authedUser{id: id, fields: user})
		c.Next()
	}
}

type authedUser struct {
	id     grader.UUID
	fields map[string]string
}

// currentUser returns the authenticated user set by the middleware.
func currentUser(c *gin.Context) authedUser {
	v, _ := c.Get(userKey)
	u, _ := v.(authedUser)
	return u
}
