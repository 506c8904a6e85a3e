package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CapabilityName converts a permission name to its flag form,
// e.g. view_users -> canViewUsers.
func CapabilityName(permission string) string {
	parts := strings.Split(permission, "_")
	// Casers are stateful and must not be shared across goroutines.
	titler := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	b.WriteString("can")
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(titler.String(p))
	}
	return b.String()
}

// Normalize maps either naming convention onto the catalog permission name.
// It returns "" when the identifier does not name a catalog permission.
func Normalize(identifier string) string {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return ""
	}
	if Known(strings.ToLower(id)) {
		return strings.ToLower(id)
	}
	rest, ok := strings.CutPrefix(id, "can")
	if !ok || rest == "" || !unicode.IsUpper(rune(rest[0])) {
		return ""
	}
	var b strings.Builder
	for i, r := range rest {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	name := b.String()
	if !Known(name) {
		return ""
	}
	return name
}

// Flags expands granted permission names into a capability map covering the
// whole catalog. Names outside the catalog are ignored.
func Flags(granted []string) map[string]bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	flags := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		_, ok := set[p.Name]
		flags[CapabilityName(p.Name)] = ok
	}
	return flags
}

// NoCapabilities returns the fail-closed capability map.
func NoCapabilities() map[string]bool {
	return Flags(nil)
}
