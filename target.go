package ddns

import "strings"

// Root is the subdomain marker for the bare domain.
const Root = "@"

// Target names the DNS entry being reconciled.
// Domain and Subdomain are always lower case.
type Target struct {
	Domain    string
	Subdomain string
}

// NewTarget returns the Target for subdomain of domain.
// An empty subdomain is the same as Root.
func NewTarget(domain, subdomain string) Target {
	t := Target{Domain: strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))}
	return t.WithSubdomain(subdomain)
}

// WithSubdomain returns a Target for subdomain in the same domain.
func (t Target) WithSubdomain(subdomain string) Target {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		subdomain = Root
	}
	return Target{Domain: t.Domain, Subdomain: subdomain}
}

// IsRoot reports whether t refers to the bare domain.
func (t Target) IsRoot() bool {
	return t.Subdomain == Root || t.Subdomain == ""
}

// FQDN returns the fully qualified name, e.g. "www.example.com" or "example.com" for the root.
func (t Target) FQDN() string {
	if t.IsRoot() {
		return t.Domain
	}
	return t.Subdomain + "." + t.Domain
}

// RecordName returns the record name relative to the domain.
// It is empty for the root.
func (t Target) RecordName() string {
	if t.IsRoot() {
		return ""
	}
	return t.Subdomain
}

func (t Target) String() string {
	return t.FQDN()
}
