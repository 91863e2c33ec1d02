package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"tasksync/internal/config"
)

var (
	errMissingAPIKey = errors.New("missing api key header")
	errInvalidAPIKey = errors.New("invalid api key")
)

const clientKeyUnknown = "unknown"

// HTTPAuth provides API-key auth and per-client rate limiting. Health checks
// bypass both.
type HTTPAuth struct {
	cfg     config.APIConfig
	header  string
	keys    [][]byte
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	header := strings.TrimSpace(cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = "x-api-key"
	}
	keys := make([][]byte, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return &HTTPAuth{
		cfg:     cfg,
		header:  header,
		keys:    keys,
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.header))
	if apiKey == "" {
		return errMissingAPIKey
	}
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(k, []byte(apiKey)) == 1 {
			return nil
		}
	}
	return errInvalidAPIKey
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.header)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
