// entry.go generates host entries and converts them to and from the hosts
// file line format.
package hostsfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

// Numbering start values for Generate.
const (
	// ZeroBased numbers hosts docker0, docker1, ... (the default).
	ZeroBased = 0

	// OneBased numbers hosts docker1, docker2, ... (--no-zero).
	OneBased = 1
)

// Generate builds one entry per address, in input order. Entry i maps
// addresses[i] to prefix followed by i+start. No sorting or deduplication
// is done, so the same input always yields the same entries.
//
//	Generate("docker", []string{"10.0.0.5", "10.0.0.6"}, ZeroBased)
//	// 10.0.0.5 docker0
//	// 10.0.0.6 docker1
func Generate(prefix string, addresses []string, start int) []model.HostEntry {
	return lo.Map(addresses, func(addr string, i int) model.HostEntry {
		return model.HostEntry{
			Address:  addr,
			Hostname: prefix + strconv.Itoa(i+start),
		}
	})
}

// Render serializes entries as hosts file lines, each terminated by "\n".
func Render(entries []model.HostEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseEntries reads hosts-format lines back into entries. Blank lines and
// comments are skipped; a line naming several hosts yields one entry per
// hostname. A line with an address but no hostname is an error.
//
// ParseEntries(strings.NewReader(Render(entries))) reproduces entries.
func ParseEntries(r io.Reader) ([]model.HostEntry, error) {
	var entries []model.HostEntry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		// Everything after "#" is a comment, including trailing comments
		// on an entry line. Fields splits on any run of spaces or tabs.
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) == 1 {
			return nil, fmt.Errorf("line %d: address %q has no hostname", lineNo, fields[0])
		}
		for _, host := range fields[1:] {
			entries = append(entries, model.HostEntry{Address: fields[0], Hostname: host})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
