package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access to the API. The cart endpoints
// ride on a session cookie, so storefronts calling from another origin need
// AllowCredentials together with an explicit origin list; browsers reject
// credentialed responses that carry a wildcard origin.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to call the API. Empty or "*"
	// allows every origin.
	AllowOrigins []string

	// AllowHeaders lists request headers allowed on preflight. When empty
	// the headers the browser asked for are echoed back.
	AllowHeaders []string

	// AllowCredentials lets the browser send the cart session cookie.
	AllowCredentials bool

	// MaxAge is how long, in seconds, the browser may cache a preflight
	// result. Zero omits the header.
	MaxAge int
}

type corsPolicy struct {
	cfg      CORSConfig
	wildcard bool
	origins  map[string]string // lowercased origin -> configured spelling
}

// CORS returns a middleware applying cfg to every request carrying an
// Origin header. Preflight OPTIONS requests are answered directly with 204.
func CORS(cfg CORSConfig) Middleware {
	p := &corsPolicy{cfg: cfg, origins: make(map[string]string, len(cfg.AllowOrigins))}
	p.wildcard = len(cfg.AllowOrigins) == 0
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.wildcard = true
		}
		p.origins[strings.ToLower(o)] = o
	}
	// A credentialed wildcard would be rejected by the browser anyway, so
	// degrade to echoing the caller's origin.
	if cfg.AllowCredentials {
		p.wildcard = false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			if isPreflight(r) {
				p.preflight(w, r, origin)
				return
			}

			if allow := p.allowValue(origin); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if p.cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allow := p.allowValue(origin)
	if allow == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	if len(p.cfg.AllowHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(p.cfg.AllowHeaders, ", "))
	} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
		h.Set("Access-Control-Allow-Headers", req)
	}
	if p.cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.cfg.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(p.cfg.MaxAge))
	}
	w.WriteHeader(http.StatusNoContent)
}

// allowValue returns what to put in Access-Control-Allow-Origin, or "" when
// the origin is not allowed.
func (p *corsPolicy) allowValue(origin string) string {
	if p.wildcard {
		return "*"
	}
	if spelled, ok := p.origins[strings.ToLower(origin)]; ok {
		return spelled
	}
	// Credentialed wildcard config: every origin is allowed but must be
	// echoed verbatim.
	if p.cfg.AllowCredentials {
		if _, star := p.origins["*"]; star || len(p.cfg.AllowOrigins) == 0 {
			return origin
		}
	}
	return ""
}
