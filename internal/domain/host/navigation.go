package host

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Policy normalises user-typed addresses.
type Policy struct {
	// DefaultScheme is prepended to addresses without one.
	DefaultScheme string
	// AllowedHosts are host globs; empty allows every host.
	AllowedHosts []string
}

// Normalize trims raw, adds the default scheme when it has none, and
// rejects anything that is not an http(s) URL on an allowed host.
func (p Policy) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty address", types.ErrNavigationPolicy)
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(lower, "://") || strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "file:") {
			return "", fmt.Errorf("%w: scheme not allowed in %q", types.ErrNavigationPolicy, s)
		}
		scheme := p.DefaultScheme
		if scheme == "" {
			scheme = "https"
		}
		s = scheme + "://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrNavigationPolicy, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q not allowed", types.ErrNavigationPolicy, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", types.ErrNavigationPolicy, s)
	}
	if !p.allows(host) {
		return "", fmt.Errorf("%w: host %s is not in the allow-list", types.ErrNavigationPolicy, host)
	}
	return u.String(), nil
}

func (p Policy) allows(host string) bool {
	if len(p.AllowedHosts) == 0 {
		return true
	}
	for _, pattern := range p.AllowedHosts {
		if ok, _ := doublestar.Match(strings.ToLower(strings.TrimSpace(pattern)), host); ok {
			return true
		}
	}
	return false
}
