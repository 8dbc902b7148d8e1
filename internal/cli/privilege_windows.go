//go:build windows

// privilege_windows.go checks for an elevated token before the local hosts
// file is modified.
package cli

import "golang.org/x/sys/windows"

// isPrivileged reports whether the process token is elevated, which is
// what writing %SystemRoot%\System32\drivers\etc\hosts requires.
func isPrivileged() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
