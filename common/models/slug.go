package models

import (
	"crypto/sha256"
	"math/big"
	"regexp"
	"strings"
)

const (
	refSlugMaxLength         = 63
	environmentSlugMaxLength = 24
	environmentSlugSuffixLen = 6
)

var nonSlugCharsRegex = regexp.MustCompile(`[^a-z0-9]`)

// RefSlug makes a DNS-label-safe version of a git ref: lower-cased, every character other than
// a-z and 0-9 replaced by '-', at most 63 characters, with no leading or trailing '-'.
func RefSlug(ref string) string {
	slug := nonSlugCharsRegex.ReplaceAllString(strings.ToLower(ref), "-")
	if len(slug) > refSlugMaxLength {
		slug = slug[:refSlugMaxLength]
	}
	return strings.Trim(slug, "-")
}

// EnvironmentSlug makes a short, DNS-safe slug for an environment name, suitable for use in
// URLs and Kubernetes resource names. Any name that had to be altered to make the slug gets a
// suffix derived from the original name so that different names never share a slug.
func EnvironmentSlug(name string) string {
	slug := nonSlugCharsRegex.ReplaceAllString(strings.ToLower(name), "-")
	if slug == "" || slug[0] < 'a' || slug[0] > 'z' {
		slug = "env-" + slug
	}
	if len(slug) > environmentSlugMaxLength || slug != name {
		prefixLen := environmentSlugMaxLength - environmentSlugSuffixLen - 1
		if len(slug) > prefixLen {
			slug = slug[:prefixLen]
		}
		slug = slug + "-" + slugSuffix(name)
	}
	return slug
}

func slugSuffix(name string) string {
	sum := sha256.Sum256([]byte(name))
	str := new(big.Int).SetBytes(sum[:]).Text(36)
	return str[len(str)-environmentSlugSuffixLen:]
}
