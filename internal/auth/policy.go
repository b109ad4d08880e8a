package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a route pattern and HTTP verb to an access requirement.
// A pattern ending in "/**" matches the path prefix; any other pattern
// matches exactly. An empty method matches every verb.
type Rule struct {
	Pattern string       `yaml:"pattern"`
	Method  string       `yaml:"method,omitempty"`
	Public  bool         `yaml:"public,omitempty"`
	Roles   []Role       `yaml:"roles,omitempty"`
	AnyOf   []Permission `yaml:"any_of,omitempty"`
}

// Policy is an ordered rule table evaluated first-match-wins. Unmatched
// requests default to "must be authenticated, no specific permission".
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from an explicit rule list.
func NewPolicy(rules []Rule) *Policy {
	return &Policy{rules: rules}
}

// DefaultPolicy returns the built-in access table: auth endpoints and
// operational probes are public, the management namespace is verb-gated by
// permission, everything else only requires authentication.
func DefaultPolicy() *Policy {
	return NewPolicy([]Rule{
		{Pattern: "/api/v1/auth/**", Public: true},
		{Pattern: "/healthz", Public: true},
		{Pattern: "/readyz", Public: true},
		{Pattern: "/v1/info", Public: true},
		{Pattern: "/metrics", Public: true},

		{Pattern: "/api/v1/management/**", Method: http.MethodGet, AnyOf: []Permission{PermAdminRead, PermManagementRead}},
		{Pattern: "/api/v1/management/**", Method: http.MethodPut, AnyOf: []Permission{PermAdminUpdate, PermManagementUpdate}},
		{Pattern: "/api/v1/management/**", Method: http.MethodDelete, AnyOf: []Permission{PermAdminDelete, PermManagementDelete}},
		{Pattern: "/api/v1/management/**", Method: http.MethodPost, AnyOf: []Permission{PermAdminCreate, PermManagementCreate}},
		{Pattern: "/api/v1/management/**", Roles: []Role{RoleAdmin, RoleManager}},
	})
}

// LoadPolicy reads a rule table from a YAML file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("policy file %s declares no rules", path)
	}
	for i, rule := range doc.Rules {
		if strings.TrimSpace(rule.Pattern) == "" {
			return nil, fmt.Errorf("policy rule %d is missing a pattern", i)
		}
		for _, role := range rule.Roles {
			if !role.Valid() {
				return nil, fmt.Errorf("policy rule %d names unknown role %q", i, role)
			}
		}
	}
	return NewPolicy(doc.Rules), nil
}

// IsPublic reports whether the route is reachable without authentication.
func (p *Policy) IsPublic(method, path string) bool {
	rule, ok := p.match(method, path)
	return ok && rule.Public
}

// Evaluate checks the authenticated principal against the matched rule.
// It returns nil when access is allowed, ErrUnauthenticated when the route
// requires identity and none is present, and ErrForbidden when the principal
// lacks the required role or permission.
func (p *Policy) Evaluate(method, path string, principal *Principal) error {
	rule, ok := p.match(method, path)
	if ok && rule.Public {
		return nil
	}
	if principal == nil || principal.User == nil {
		return ErrUnauthenticated
	}
	if !ok {
		return nil
	}
	if len(rule.Roles) > 0 {
		matched := false
		for _, role := range rule.Roles {
			if principal.HasRole(role) {
				matched = true
				break
			}
		}
		if !matched {
			return ErrForbidden
		}
	}
	if len(rule.AnyOf) > 0 && !principal.HasAnyPermission(rule.AnyOf...) {
		return ErrForbidden
	}
	return nil
}

func (p *Policy) match(method, path string) (Rule, bool) {
	for _, rule := range p.rules {
		if rule.Method != "" && !strings.EqualFold(rule.Method, method) {
			continue
		}
		if matchPattern(rule.Pattern, path) {
			return rule, true
		}
	}
	return Rule{}, false
}

func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == pattern
}
