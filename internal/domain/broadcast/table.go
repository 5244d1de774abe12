package broadcast

import (
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/publicsuffix"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// GenericSite is the key of the fallback strategy.
const GenericSite = "generic"

// Table maps site keys to strategies. Resolve never returns nil: unknown
// sites get the generic record.
type Table struct {
	mu      sync.RWMutex
	bySite  map[string]*Strategy
	order   []string
	generic *Strategy
}

// NewTable creates a table holding the built-in records.
func NewTable() *Table {
	t := &Table{bySite: make(map[string]*Strategy)}
	for _, spec := range BuiltinStrategies() {
		s, err := Compile(spec)
		if err != nil {
			panic(err)
		}
		t.put(s)
	}
	return t
}

// Register compiles and adds a record, replacing any record with the same
// site key. Replacing "generic" replaces the fallback.
func (t *Table) Register(spec types.StrategySpec) error {
	s, err := Compile(spec)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.put(s)
	t.mu.Unlock()
	return nil
}

// RegisterAll registers records in order and stops at the first error.
func (t *Table) RegisterAll(specs []types.StrategySpec) error {
	for _, spec := range specs {
		if err := t.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) put(s *Strategy) {
	if _, exists := t.bySite[s.Site()]; !exists {
		t.order = append(t.order, s.Site())
	}
	t.bySite[s.Site()] = s
	if s.Site() == GenericSite {
		t.generic = s
	}
}

// Lookup returns the record for an exact site key.
func (t *Table) Lookup(site string) (*Strategy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.bySite[strings.ToLower(site)]
	return s, ok
}

// Sites lists registered site keys in registration order.
func (t *Table) Sites() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

// Generic returns the fallback record.
func (t *Table) Generic() *Strategy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generic
}

// Resolve finds the strategy for a panel: by panel id, then by a host glob
// of a record matching the panel URL, then by the URL's site identity,
// then the generic record.
func (t *Table) Resolve(panelID, rawURL string) *Strategy {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.bySite[strings.ToLower(panelID)]; ok {
		return s
	}

	host := hostOf(rawURL)
	if host != "" {
		for _, site := range t.order {
			s := t.bySite[site]
			for _, pattern := range s.spec.Hosts {
				if ok, _ := doublestar.Match(strings.ToLower(pattern), host); ok {
					return s
				}
			}
		}
		if s, ok := t.bySite[SiteIdentity(rawURL)]; ok {
			return s
		}
	}
	return t.generic
}

// SiteIdentity returns the registrable name of a URL's host, without its
// public suffix: https://chat.deepseek.com/a/b gives "deepseek". Hosts
// without a registrable domain, such as IPs or localhost, are returned
// as-is.
func SiteIdentity(rawURL string) string {
	host := hostOf(rawURL)
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return strings.TrimSuffix(strings.TrimSuffix(domain, suffix), ".")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
