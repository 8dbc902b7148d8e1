// name.go derives the default host name prefix from the environment file
// name.
package envfile

import (
	"path/filepath"
	"strings"
)

// nameSeparator separates the host family from the rest of an environment
// file name, e.g. "docker-1.txt".
const nameSeparator = "-"

// DeriveName computes the default hostname prefix from an environment file
// name: the directory and the last extension are stripped, and the part
// before the first "-" is returned. Without a separator the whole stem is
// returned.
//
//	DeriveName("docker-1.txt")        == "docker"
//	DeriveName("plainname.txt")       == "plainname"
//	DeriveName("/home/u/env-a-b.txt") == "env"
//	DeriveName(".env")                == ".env"
//
// Leading dots are part of the stem, so a dotfile keeps its full name.
// The result is empty only when the stem is empty or starts with "-";
// callers must reject that case.
func DeriveName(filename string) string {
	name, _, _ := strings.Cut(stem(filepath.Base(filename)), nameSeparator)
	return name
}

// stem strips the last extension from base, ignoring leading dots.
func stem(base string) string {
	rest := strings.TrimLeft(base, ".")
	lead := base[:len(base)-len(rest)]
	return lead + strings.TrimSuffix(rest, filepath.Ext(rest))
}
