package server

import (
	"fmt"
	"net/http"

	"github.com/conneroisu/roaster/internal/config"
)

// SecurityConfig holds the response headers added to every response.
type SecurityConfig struct {
	HSTS                *HSTSConfig
	XFrameOptions       string
	XContentTypeNoSniff bool
	ReferrerPolicy      string
}

// HSTSConfig holds HTTP Strict Transport Security configuration
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
}

// SecurityConfigFromAppConfig derives the header set for the run mode.
// HSTS is only sent in production and only over TLS.
func SecurityConfigFromAppConfig(cfg *config.Config) *SecurityConfig {
	sec := &SecurityConfig{
		XFrameOptions:       "DENY",
		XContentTypeNoSniff: true,
		ReferrerPolicy:      "strict-origin-when-cross-origin",
	}
	if cfg.IsProduction() {
		sec.HSTS = &HSTSConfig{MaxAge: 31536000, IncludeSubDomains: true}
	}
	return sec
}

// SecurityMiddleware applies the configured headers before the response
// is written.
func SecurityMiddleware(secConfig *SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applySecurityHeaders(w, r, secConfig)
			next.ServeHTTP(w, r)
		})
	}
}

func applySecurityHeaders(w http.ResponseWriter, r *http.Request, sec *SecurityConfig) {
	h := w.Header()
	if sec.HSTS != nil && r.TLS != nil {
		h.Set("Strict-Transport-Security", buildHSTSHeader(sec.HSTS))
	}
	if sec.XFrameOptions != "" {
		h.Set("X-Frame-Options", sec.XFrameOptions)
	}
	if sec.XContentTypeNoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if sec.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", sec.ReferrerPolicy)
	}
}

func buildHSTSHeader(hsts *HSTSConfig) string {
	header := fmt.Sprintf("max-age=%d", hsts.MaxAge)
	if hsts.IncludeSubDomains {
		header += "; includeSubDomains"
	}
	return header
}
