package middleware

import (
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig decides which pages may call the command surface. The
// control pages run on loopback; panels show remote sites, and those must
// not be able to drive the host from their own origin.
type CORSConfig struct {
	// Origins are allowed as well as loopback ones, e.g. a dashboard
	// served from another machine.
	Origins       []string
	AllowLoopback bool
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        time.Duration
}

// DefaultCORSConfig allows loopback pages on any port plus origins.
func DefaultCORSConfig(origins ...string) CORSConfig {
	return CORSConfig{
		Origins:       origins,
		AllowLoopback: true,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Content-Length", "Accept", "Origin", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
}

// Allowed reports whether a page served from origin may use the surface.
func (c CORSConfig) Allowed(origin string) bool {
	origin = strings.TrimSuffix(origin, "/")
	for _, o := range c.Origins {
		if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return true
		}
	}
	if !c.AllowLoopback {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.IsLoopback()
}

// CORS answers cross-origin requests from allowed pages and rejects the
// rest with 403. Same-origin requests and clients without an Origin
// header pass untouched.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: cfg.Allowed,
		AllowMethods:    cfg.AllowMethods,
		AllowHeaders:    cfg.AllowHeaders,
		ExposeHeaders:   cfg.ExposeHeaders,
		MaxAge:          cfg.MaxAge,
	})
}
