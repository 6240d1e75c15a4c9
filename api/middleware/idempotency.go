package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/roha-backend/api/responses"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/roha-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
	maxIdempotentBody    = 1 << 20
	defaultInFlightTTL   = 30 * time.Second
)

// replayedHeaders are the response headers worth keeping alongside the body.
var replayedHeaders = []string{"Content-Type", "Location"}

type storedResponse struct {
	Status      int               `json:"status"`
	Body        []byte            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// the route it wraps. Keys are scoped to the caller and the route pattern, so
// two customers sending the same key never collide. A request without the
// header runs normally. While the first request is still running, a duplicate
// gets CONFLICT instead of a second execution. 5xx responses are not kept so
// the client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger, ttl, inFlight time.Duration) func(http.Handler) http.Handler {
	if inFlight <= 0 {
		inFlight = defaultInFlightTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if store == nil || ttl <= 0 || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long").
					WithDetails(map[string]any{"max_length": maxIdempotencyKeyLen}))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			if len(body) > maxIdempotentBody {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body is too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(r.Method, r.URL.Path, body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			stored, err := lookupResponse(r, store, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if stored != nil {
				if stored.RequestHash != hash {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "Idempotency-Key was already used with a different request"))
					return
				}
				replay(w, stored)
				return
			}

			lockKey := key + ":in_flight"
			acquired, err := store.SetNX(ctx, lockKey, hash, inFlight)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock idempotency key"))
				return
			}
			if !acquired {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is still in progress"))
				return
			}
			defer func() {
				if err := store.Del(ctx, lockKey); err != nil && logg != nil {
					logg.Warn(logg.WithField(ctx, "idempotency_key", key), "failed to release idempotency lock")
				}
			}()

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			record := storedResponse{
				Status:      status,
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			}
			for _, h := range replayedHeaders {
				if v := capture.Header().Get(h); v != "" {
					if record.Headers == nil {
						record.Headers = make(map[string]string, len(replayedHeaders))
					}
					record.Headers[h] = v
				}
			}
			payload, err := json.Marshal(record)
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "encode idempotent response", err)
				}
				return
			}
			if _, err := store.SetNX(ctx, key, string(payload), ttl); err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", key), "store idempotent response", err)
			}
		})
	}
}

func lookupResponse(r *http.Request, store pkgredis.IdempotencyStore, key string) (*storedResponse, error) {
	raw, err := store.Get(r.Context(), key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record")
	}
	return &stored, nil
}

// idempotencyScope ties a key to who sent it and which route it hit. Route
// patterns keep /orders/{orderId}/transition from splitting per order id
// while the actor part keeps customers apart. The concrete path goes into
// requestHash, so reusing a key on another order is a conflict.
func idempotencyScope(r *http.Request) string {
	owner := "anon:" + clientIP(r)
	if actor := ActorFromContext(r.Context()); actor.IsAuthenticated() {
		owner = actor.UserID.String()
	}
	return owner + "|" + r.Method + "|" + routePattern(r, r.URL.Path)
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, stored *storedResponse) {
	for name, value := range stored.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	if len(stored.Body) > 0 {
		_, _ = w.Write(stored.Body)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
