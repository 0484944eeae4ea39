package auth

import (
	"fmt"
	"sort"
	"strings"

	"itdesk.org/internal/apperr"
)

// Principal represents a user with the effective permission set resolved at request time.
type Principal struct {
	User        User
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal from a list of permission tags.
func NewPrincipal(user User, tags []string) Principal {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return Principal{User: user, Permissions: set}
}

// HasPermission reports whether the principal holds the tag.
func (p Principal) HasPermission(tag string) bool {
	_, ok := p.Permissions[tag]
	return ok
}

// Tags returns the effective permission set in sorted order.
func (p Principal) Tags() []string {
	out := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Authorize applies the route policy: no required tags allows anyone,
// otherwise a principal must be present and hold every tag.
func Authorize(p *Principal, required []string) error {
	if len(required) == 0 {
		return nil
	}
	if p == nil {
		return ErrNoPrincipal
	}
	var missing []string
	for _, tag := range required {
		if !p.HasPermission(tag) {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing permission %s", apperr.ErrForbidden, strings.Join(missing, ", "))
	}
	return nil
}
