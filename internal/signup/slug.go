package signup

import (
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

const (
	minSlugLength = 4
	maxSlugLength = 32
)

var (
	slugStripPattern  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpacePattern  = regexp.MustCompile(`[\s_]+`)
	slugHyphenPattern = regexp.MustCompile(`-+`)
)

var reservedSlugs = map[string]struct{}{
	"admin": {}, "api": {}, "app": {}, "www": {}, "mail": {}, "support": {},
	"help": {}, "status": {}, "billing": {}, "login": {}, "signup": {},
	"dashboard": {}, "static": {}, "assets": {}, "public": {}, "docs": {},
	"blog": {}, "dev": {}, "test": {}, "staging": {}, "root": {},
}

// GenerateSlug lowercases name, drops everything outside [a-z0-9 whitespace -],
// turns whitespace and underscore runs into one hyphen, collapses repeated
// hyphens and trims them from both ends.
func GenerateSlug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStripPattern.ReplaceAllString(s, "")
	s = slugSpacePattern.ReplaceAllString(s, "-")
	s = slugHyphenPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func normalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isReservedSlug(s string) bool {
	_, ok := reservedSlugs[s]
	return ok
}

// validateSlug checks an explicitly chosen slug. Derived slugs skip the
// length rule.
func validateSlug(s string) (string, bool) {
	if len(s) < minSlugLength || len(s) > maxSlugLength {
		return "Subdomain must be 4-32 characters", false
	}
	if strings.Contains(s, "_") || !slug.IsSlug(s) {
		return "Subdomain may only contain lowercase letters, numbers and single hyphens", false
	}
	if isReservedSlug(s) {
		return "Subdomain is reserved", false
	}
	return "", true
}
