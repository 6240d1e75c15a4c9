package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/roha-backend/api/responses"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

const rateLimitKeyPrefix = "roha:rl"

// RateLimiterStore counts attempts inside a TTL window.
type RateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// RateLimitRule is one fixed-window counter. key extracts the counted
// identity from the request; an empty identity skips the rule.
type RateLimitRule struct {
	scope     string
	window    time.Duration
	limit     int
	needsBody bool
	key       func(r *http.Request, body []byte) string
}

func (rule RateLimitRule) active() bool {
	return rule.window > 0 && rule.limit > 0
}

// ByIP counts requests per client address.
func ByIP(window time.Duration, limit int) RateLimitRule {
	return RateLimitRule{scope: "ip", window: window, limit: limit, key: func(r *http.Request, _ []byte) string {
		return clientIP(r)
	}}
}

// ByEmail counts requests per JSON body "email", hashed so addresses never
// reach Redis or the logs.
func ByEmail(window time.Duration, limit int) RateLimitRule {
	return RateLimitRule{scope: "email", window: window, limit: limit, needsBody: true, key: func(_ *http.Request, body []byte) string {
		email := strings.ToLower(strings.TrimSpace(extractEmail(body)))
		if email == "" {
			return ""
		}
		return hashValue(email)
	}}
}

// ByActor counts requests per authenticated profile. It must run after Auth.
func ByActor(window time.Duration, limit int) RateLimitRule {
	return RateLimitRule{scope: "actor", window: window, limit: limit, key: func(r *http.Request, _ []byte) string {
		actor := ActorFromContext(r.Context())
		if !actor.IsAuthenticated() {
			return ""
		}
		return actor.UserID.String()
	}}
}

// RateLimit rejects a request with 429 once any rule's counter passes its
// limit. A store failure fails closed with 503.
func RateLimit(policy string, store RateLimiterStore, logg *logger.Logger, rules ...RateLimitRule) func(http.Handler) http.Handler {
	active := make([]RateLimitRule, 0, len(rules))
	needsBody := false
	for _, rule := range rules {
		if rule.active() {
			active = append(active, rule)
			needsBody = needsBody || rule.needsBody
		}
	}
	return func(next http.Handler) http.Handler {
		if store == nil || len(active) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if needsBody {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, 64<<10))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, rule := range active {
				identity := rule.key(r, body)
				if identity == "" {
					continue
				}
				key := fmt.Sprintf("%s:%s:%s:%s", rateLimitKeyPrefix, policy, rule.scope, identity)
				count, err := store.IncrWithTTL(ctx, key, rule.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(rule.limit) {
					rejectRateLimited(ctx, logg, w, policy, rule, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy string, rule RateLimitRule, count int64) {
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"policy":         policy,
			"scope":          rule.scope,
			"attempts":       count,
			"limit":          rule.limit,
			"window_seconds": int(rule.window.Seconds()),
		})
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(rule.window.Seconds())))
	responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeRateLimit, "too many %s attempts, try again later", policy))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
