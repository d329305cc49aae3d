package variables

import (
	"regexp"
)

// referenceRegex matches "$$", "%%", "$NAME", "${NAME}" and "%NAME%".
var referenceRegex = regexp.MustCompile(`\$\$|%%|\$([a-zA-Z_][a-zA-Z0-9_]*)|\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}|%([a-zA-Z_][a-zA-Z0-9_]*)%`)

// Scope lazily produces the variables a template is expanded against.
type Scope func() *Collection

// Expand replaces references to variables in template with their values from the collection
// returned by scope. scope is only called if template holds at least one reference, and at most
// once. References to variables that are not in scope are left in place. Values substituted into
// the template are not themselves expanded.
func Expand(template string, scope Scope) string {
	return expandWithLookup(template, func() map[string]string {
		if scope == nil {
			return nil
		}
		return scope().ToMap()
	})
}

// ExpandResolved expands template against the sorted and expanded values of scope, so a reference
// to a variable whose own value references other variables resolves to the expanded value.
func ExpandResolved(template string, scope Scope) string {
	return expandWithLookup(template, func() map[string]string {
		if scope == nil {
			return nil
		}
		return scope().SortAndExpandAll()
	})
}

// References returns the names referenced by template, in order of appearance.
func References(template string) []string {
	var names []string
	for _, match := range referenceRegex.FindAllStringSubmatch(template, -1) {
		if name := referenceName(match); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// HasReferences returns true if template holds at least one variable reference.
func HasReferences(template string) bool {
	return len(References(template)) > 0
}

func expandWithLookup(template string, lookup func() map[string]string) string {
	var values map[string]string
	loaded := false
	return referenceRegex.ReplaceAllStringFunc(template, func(token string) string {
		name := referenceName(referenceRegex.FindStringSubmatch(token))
		if name == "" {
			return token
		}
		if !loaded {
			values = lookup()
			loaded = true
		}
		value, ok := values[name]
		if !ok {
			return token
		}
		return value
	})
}

func referenceName(match []string) string {
	for _, group := range match[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}
