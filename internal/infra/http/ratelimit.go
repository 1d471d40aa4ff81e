package http

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"docsign/internal/domain"
	"docsign/internal/infra/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	routeSign       = "signatures:sign"
	routeVerify     = "signatures:verify"
	routeBulkVerify = "signatures:verify-bulk"
	routeIntegrity  = "documents:integrity"
	routeCertStore  = "certificates:store"
)

var subjectLimitedRoutes = map[string]bool{
	routeSign:      true,
	routeCertStore: true,
}

func (s *Server) enforceRateLimit(c *gin.Context, routeID, tenantID string, principal domain.Principal) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	if tenantID == "" {
		tenantID = principal.TenantID
	}
	key := fmt.Sprintf("tenant:%s:endpoint:%s", tenantID, routeID)
	if subjectLimitedRoutes[routeID] && principal.Subject != "" {
		sum := sha256.Sum256([]byte(principal.Subject))
		key = key + ":subject_hash:" + hex.EncodeToString(sum[:])
	}

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		s.logger.Warn("rate limiter error", zap.String("route", routeID), zap.Error(err))
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		metrics.RateLimitedTotal.Inc()
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
