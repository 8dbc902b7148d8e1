// Package docker lets mkhosts distribute a hosts working file to local
// containers through the Docker Engine API.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Target discovery: running containers matching a label selector
//   - A remote.Dialer whose sessions copy files with CopyToContainer and
//     run commands with exec create/attach/inspect
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
