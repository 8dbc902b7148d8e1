//go:build !windows

// privilege_unix.go checks for root before the local hosts file is modified.
package cli

import "os"

func isPrivileged() bool {
	return os.Geteuid() == 0
}
