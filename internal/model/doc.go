// Package model defines the domain types and value objects for the
// mkhosts CLI.
//
// This package contains pure data structures with no external dependencies.
// Address lists, host entries and per-target results are created once per
// run and passed explicitly between packages; nothing here is shared as
// package-level mutable state.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
