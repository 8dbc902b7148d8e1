// Package hostsfile generates host entries from address lists and writes
// them to hosts-format files.
//
// Entries are rendered one per line as "<address> <hostname>". The working
// file is written in one atomic step; the system hosts file is only ever
// appended to, under an advisory file lock, and never truncated or
// rewritten in place.
package hostsfile
