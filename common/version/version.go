package version

import "fmt"

// VERSION is the major.minor.patch version the binary was built from. Set at build time.
var VERSION string

// GITCOMMIT is the short git hash the binary was built from. Set at build time.
var GITCOMMIT string

// ServerVersion returns the version reported to jobs in CI_SERVER_VERSION, or "dev" for binaries
// built without version information.
func ServerVersion() string {
	if VERSION == "" {
		return "dev"
	}
	return VERSION
}

// VersionToString returns the version and commit for --version output, or "" if neither was set.
func VersionToString() string {
	if VERSION == "" && GITCOMMIT == "" {
		return ""
	}
	return fmt.Sprintf("%s - %s", VERSION, GITCOMMIT)
}
