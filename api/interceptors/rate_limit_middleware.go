package interceptors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/john-matlock-eng/journal-vault/global"
)

const (
	LimitRequestsPerSecond      = 5
	LimitSetupRequestsPerSecond = 1
)

// RateLimitMiddleware keys the limiter on a fingerprint of the request
// origin. Encryption setup gets a tighter limit since a failed-password
// retry loop there burns full KDF work on the client.
func RateLimitMiddleware() gin.HandlerFunc {
	setupRe := regexp.MustCompile("^/api/v.*/encryption/setup$")

	return func(c *gin.Context) {
		ip, _ := getIP(c)
		if ip == nil {
			unkn := "unknown"
			ip = &unkn
		}
		userAgent := c.GetHeader("User-Agent")
		acceptLanguage := c.GetHeader("Accept-Language")
		referer := c.GetHeader("Referer")
		all := fmt.Sprintf("%s%s%s%s", *ip, userAgent, acceptLanguage, referer)
		for _, cookie := range c.Request.Cookies() {
			all = fmt.Sprintf("%s%s%s", all, cookie.Name, cookie.Value)
		}

		limit := LimitRequestsPerSecond
		if setupRe.MatchString(c.Request.URL.Path) {
			limit = LimitSetupRequestsPerSecond
			all = fmt.Sprintf("%s%s", all, "_setup")
		}

		hash := xxhash.Sum64String(all)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		result, err := global.RateLimiter.Allow(ctx, strconv.FormatUint(hash, 10), redis_rate.PerSecond(limit))
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, errors.New("failed to perform rate limit check"))
			return
		}
		if result.Allowed <= 0 {
			c.AbortWithError(http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}

		c.Writer.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit.Rate))
		c.Writer.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Writer.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(result.ResetAfter.Milliseconds())))
		c.Next()
	}
}
