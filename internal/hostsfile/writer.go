// writer.go manages the files mkhosts writes: the temporary working file
// and the local hosts file.
//
// The two are written very differently:
//   - the working file belongs to mkhosts and is replaced atomically
//   - the hosts file belongs to the system; it is opened for append only,
//     under an advisory lock, and existing lines are never rewritten
package hostsfile

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/gofrs/flock"
	atomicfile "github.com/natefinch/atomic"
	"github.com/samber/lo"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

// SystemHostsPath returns the well-known location of the local hosts file.
func SystemHostsPath() string {
	if runtime.GOOS == "windows" {
		return os.ExpandEnv(`${SystemRoot}\System32\drivers\etc\hosts`)
	}
	return "/etc/hosts"
}

// NewWorkingFile reserves a path for the working file. When path is empty a
// fresh temporary file is created; otherwise path is used as given.
func NewWorkingFile(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	// The file is created empty here and filled by WriteWorkingFile. Its
	// name is unique in TMPDIR, so concurrent runs never share it.
	f, err := os.CreateTemp("", "mkhosts-*.hosts")
	if err != nil {
		return "", fmt.Errorf("failed to create working file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to create working file: %w", err)
	}
	return name, nil
}

// WriteWorkingFile replaces the content of path with the rendered entries.
// The write goes through a temporary file and a rename, so a reader never
// sees a partially written working file.
func WriteWorkingFile(path string, entries []model.HostEntry) error {
	if err := atomicfile.WriteFile(path, strings.NewReader(Render(entries))); err != nil {
		return fmt.Errorf("failed to write working file %s: %w", path, err)
	}
	return nil
}

// RemoveWorkingFile deletes the working file. A file that is already gone
// is not an error.
func RemoveWorkingFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove working file %s: %w", path, err)
	}
	return nil
}

// AppendEntries appends the rendered entries to the hosts file at path.
// Existing content is never modified. If the file does not end with a
// newline one is written first so the new entries start on their own line.
//
// The file is held under an advisory lock for the duration of the write.
func AppendEntries(path string, entries []model.HostEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// O_APPEND makes every write land at the end of the file, whatever
	// other writers do. The raw error is returned so callers can test it
	// with os.IsPermission.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// The lock is advisory: it serializes concurrent mkhosts runs, not
	// other tools editing the file.
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	// The whole block goes out in one write, after the separator newline
	// when one is needed.
	data := Render(entries)
	needsNewline, err := missingTrailingNewline(f)
	if err != nil {
		return err
	}
	if needsNewline {
		data = "\n" + data
	}

	if _, err := io.WriteString(f, data); err != nil {
		return err
	}
	return f.Sync()
}

// AlreadyMapped returns the entries whose hostname the hosts file at path
// already maps, in input order. A missing file maps nothing.
func AlreadyMapped(path string, entries []model.HostEntry) ([]model.HostEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	existing, err := ParseEntries(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	mapped := lo.Associate(existing, func(e model.HostEntry) (string, bool) {
		return e.Hostname, true
	})
	return lo.Filter(entries, func(e model.HostEntry, _ int) bool {
		return mapped[e.Hostname]
	}), nil
}

// missingTrailingNewline reports whether f is non-empty and its last byte
// is not a newline.
func missingTrailingNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
