package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/auth"
	"github.com/dmitrijs2005/clouddrive/internal/server/metrics"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/gin-gonic/gin"
)

const (
	principalKey = "principal"

	accessCookie = common.AccessTokenCookieName
	videoCookie  = common.VideoTokenCookieName
	clientHeader = common.ClientUUIDHeaderName
)

// writeError aborts c with the status HTTPStatus assigns to err. Nothing is
// written once a response body has started.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	if c.Writer.Written() {
		c.Abort()
		return
	}
	status := common.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func bearerToken(c *gin.Context) string {
	if tok, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	if tok, err := c.Cookie(accessCookie); err == nil {
		return tok
	}
	return ""
}

// authenticate resolves the principal of the request. Scoped tokens (download,
// video) are not accepted as identity.
func authenticate(c *gin.Context, secret []byte) (models.Principal, error) {
	tok := bearerToken(c)
	if tok == "" {
		return models.Principal{}, common.ErrorUnauthorized
	}
	claims, err := auth.ParseToken(tok, secret)
	if err != nil {
		return models.Principal{}, err
	}
	if claims.Kind != "" {
		return models.Principal{}, common.ErrInvalidToken
	}
	return claims.Principal(), nil
}

// Auth rejects requests without a valid principal token with 401.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := authenticate(c, secret)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principal(c *gin.Context) models.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(models.Principal)
	return p
}

// observe records request metrics and logs failed requests.
func observe(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequest(c.Request.Method, path, status, elapsed)

		kv := []any{"method", c.Request.Method, "path", path, "status", status, "duration", elapsed}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(c.Request.Context(), "request failed", append(kv, "error", c.Errors.String())...)
		case len(c.Errors) > 0:
			logger.Debug(c.Request.Context(), "request rejected", append(kv, "error", c.Errors.String())...)
		default:
			logger.Debug(c.Request.Context(), "request", kv...)
		}
	}
}
