package gateway

import (
	"bufio"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// APIKeyAuth checks bearer tokens against a digest set so plaintext keys
// never sit in process memory longer than a request.
type APIKeyAuth struct {
	digests map[string]struct{}
}

// NewAPIKeyAuth builds an auth provider from a comma-separated key list.
// An empty list disables authentication.
func NewAPIKeyAuth(keys string) *APIKeyAuth {
	digests := make(map[string]struct{})
	for _, key := range strings.Split(keys, ",") {
		key = normalizeAPIKey(key)
		if key == "" {
			continue
		}
		sum := sha256.Sum256([]byte(key))
		digests[hex.EncodeToString(sum[:])] = struct{}{}
	}
	if len(digests) == 0 {
		return nil
	}
	return &APIKeyAuth{digests: digests}
}

// Authenticate returns the digest of the presented key, or an error when
// the key is missing or unknown.
func (a *APIKeyAuth) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	key := ""
	if strings.HasPrefix(header, "Bearer ") {
		key = normalizeAPIKey(strings.TrimPrefix(header, "Bearer "))
	}
	if key == "" {
		key = normalizeAPIKey(r.Header.Get("X-API-Key"))
	}
	if key == "" {
		return "", fmt.Errorf("api key required")
	}
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	for known := range a.digests {
		if subtle.ConstantTimeCompare([]byte(known), []byte(digest)) == 1 {
			return digest, nil
		}
	}
	return "", fmt.Errorf("invalid api key")
}

func normalizeAPIKey(key string) string {
	key = strings.TrimSpace(key)
	// Common .env mistake: quoting values.
	key = strings.Trim(key, "\"'")
	return strings.TrimSpace(key)
}

func apiKeyMiddleware(auth *APIKeyAuth, next http.Handler) http.Handler {
	if auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := auth.Authenticate(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && isAllowedOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin; treat as allowed.
		return true
	}

	allowed, allowAll := allowedOriginsFromEnv()
	if allowAll {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	if len(allowed) == 0 {
		host := strings.ToLower(u.Hostname())
		switch host {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
		reqHost := strings.ToLower(requestHostname(r.Host))
		return reqHost != "" && host == reqHost
	}

	_, ok := allowed[origin]
	return ok
}

func allowedOriginsFromEnv() (map[string]struct{}, bool) {
	raw := strings.TrimSpace(os.Getenv("MARKPE_ALLOWED_ORIGINS"))
	if raw == "" {
		return nil, false
	}
	if raw == "*" {
		return nil, true
	}
	set := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set, false
}

func requestHostname(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil && host != "" {
		return host
	}
	return hostport
}

// callerIdentity is the rate-limit key: the api key digest when present,
// otherwise the client address.
func callerIdentity(r *http.Request, auth *APIKeyAuth) string {
	if auth != nil {
		if digest, err := auth.Authenticate(r); err == nil {
			return digest
		}
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	return requestHostname(r.RemoteAddr)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hj.Hijack()
}

// Flush preserves streaming support if the wrapped writer implements it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumented wraps handlers to record metrics.
func (s *Server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
		}
	}
}
