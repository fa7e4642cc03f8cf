// Package tenant describes the sites hosted by one portal deployment and
// resolves incoming requests to one of them.
package tenant

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ErrUnknownTenant is returned when a request matches no configured tenant
var ErrUnknownTenant = errors.New("unknown tenant")

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Tenant is one hosted site. Slug doubles as the tenant_id stored on every row.
type Tenant struct {
	Slug string `mapstructure:"slug" json:"slug"`
	Name string `mapstructure:"name" json:"name"`
	// Hosts are exact host names served for this tenant
	Hosts []string `mapstructure:"hosts" json:"hosts,omitempty"`
	// NotifyEmail receives new-lead notifications
	NotifyEmail string `mapstructure:"notify_email" json:"notify_email,omitempty"`
	// FromEmail is the sender used for client-facing email
	FromEmail string `mapstructure:"from_email" json:"from_email,omitempty"`
}

// Registry resolves tenants by slug or host
type Registry struct {
	bySlug map[string]*Tenant
	byHost map[string]*Tenant
	order  []*Tenant
}

// NewRegistry validates and indexes the given tenants
func NewRegistry(tenants []Tenant) (*Registry, error) {
	r := &Registry{
		bySlug: make(map[string]*Tenant, len(tenants)),
		byHost: make(map[string]*Tenant),
	}

	for i := range tenants {
		t := tenants[i]
		if !slugPattern.MatchString(t.Slug) {
			return nil, fmt.Errorf("invalid tenant slug %q", t.Slug)
		}
		if _, dup := r.bySlug[t.Slug]; dup {
			return nil, fmt.Errorf("duplicate tenant slug %q", t.Slug)
		}
		if t.Name == "" {
			t.Name = t.Slug
		}

		r.bySlug[t.Slug] = &t
		r.order = append(r.order, &t)

		for _, h := range t.Hosts {
			h = strings.ToLower(h)
			if other, dup := r.byHost[h]; dup {
				return nil, fmt.Errorf("host %q claimed by tenants %q and %q", h, other.Slug, t.Slug)
			}
			r.byHost[h] = &t
		}
	}

	return r, nil
}

// Lookup returns the tenant with the given slug
func (r *Registry) Lookup(slug string) (*Tenant, error) {
	if t, ok := r.bySlug[strings.ToLower(strings.TrimSpace(slug))]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, slug)
}

// ResolveHost maps a Host header to a tenant. Exact host matches win; otherwise
// the left-most label is tried as a slug (acme.portal.example → acme).
func (r *Registry) ResolveHost(hostport string) (*Tenant, error) {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	if t, ok := r.byHost[host]; ok {
		return t, nil
	}

	if label, _, found := strings.Cut(host, "."); found {
		if t, ok := r.bySlug[label]; ok {
			return t, nil
		}
	}

	return nil, fmt.Errorf("%w: host %s", ErrUnknownTenant, hostport)
}

// All returns tenants in configuration order
func (r *Registry) All() []*Tenant {
	out := make([]*Tenant, len(r.order))
	copy(out, r.order)
	return out
}
