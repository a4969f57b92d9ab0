package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Credentials is a basic-auth username and password pair
type Credentials struct {
	Username string
	Password string
}

// Enabled reports whether a password is configured.
func (c Credentials) Enabled() bool {
	return c.Password != ""
}

// Header returns the Authorization header value for c.
func (c Credentials) Header() string {
	return CreateBasicAuthHeader(c.Username, c.Password)
}

// ValidateBasicAuth checks an Authorization header against the expected pair
func ValidateBasicAuth(authHeader, expectedUsername, expectedPassword string) bool {
	if !strings.HasPrefix(authHeader, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return false
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	// Constant-time comparison
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(expectedUsername)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(expectedPassword)) == 1

	return usernameMatch && passwordMatch
}

// CreateBasicAuthHeader creates a Basic Auth header value
func CreateBasicAuthHeader(username, password string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return "Basic " + encoded
}

// Middleware rejects requests without valid credentials. With no password
// configured every request passes.
func Middleware(creds Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !creds.Enabled() {
			c.Next()
			return
		}
		if !ValidateBasicAuth(c.GetHeader("Authorization"), creds.Username, creds.Password) {
			c.Header("WWW-Authenticate", `Basic realm="deploybot"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
