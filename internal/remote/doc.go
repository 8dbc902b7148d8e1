// Package remote distributes the working file to remote targets and appends
// it to each target's hosts file.
//
// The transport is hidden behind two small interfaces: a Dialer opens a
// Session to one target, and a Session can transfer a file and run a
// command. The SSH implementation in this package uses
// golang.org/x/crypto/ssh with known_hosts verification by default; the
// docker package provides a second implementation for local containers.
//
// Targets are processed one at a time, in order, with at most one session
// open. A failing target is recorded and the next one is attempted.
package remote
