package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsRules struct {
	any         bool
	origins     map[string]bool
	credentials bool
	headers     map[string]string
}

func newCORSRules(p CORSPolicy) corsRules {
	methods := p.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	}
	allowHeaders := p.AllowedHeaders
	if len(allowHeaders) == 0 {
		allowHeaders = []string{"Authorization", "Content-Type", "Idempotency-Key", RequestIDHeader}
	}

	rules := corsRules{
		origins:     map[string]bool{},
		credentials: p.AllowCredentials,
		headers: map[string]string{
			"Access-Control-Allow-Methods": strings.Join(trimAll(methods), ", "),
			"Access-Control-Allow-Headers": strings.Join(trimAll(allowHeaders), ", "),
		},
	}
	if p.MaxAge > 0 {
		rules.headers["Access-Control-Max-Age"] = strconv.Itoa(int(p.MaxAge.Seconds()))
	}
	if p.AllowCredentials {
		rules.headers["Access-Control-Allow-Credentials"] = "true"
	}
	for _, o := range trimAll(p.AllowedOrigins) {
		if o == "*" {
			rules.any = true
			continue
		}
		rules.origins[strings.ToLower(o)] = true
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin.
// Credentialed wildcards echo the origin since browsers reject "*" there.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	if c.origins[strings.ToLower(origin)] {
		return origin, true
	}
	if c.any {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflight requests for the public booking widget. It is a
// no-op when AllowedOrigins is empty.
func WithCORS(p CORSPolicy) Middleware {
	if len(trimAll(p.AllowedOrigins)) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rules := newCORSRules(p)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			for k, v := range rules.headers {
				if v != "" {
					h.Set(k, v)
				}
			}
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
