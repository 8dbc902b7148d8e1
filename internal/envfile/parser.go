// parser.go extracts IP: markers from an environment file and classifies
// the addresses as private or public.
//
// Parsing is line based and never fails on content: lines without a marker
// are ignored, and the address text is taken verbatim unless strict
// validation is requested with ValidateAddresses.
package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/netip"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/shinji-kodama/mkhosts/internal/model"
)

// DefaultPrivatePrefix is the address prefix that marks a private address.
const DefaultPrivatePrefix = "10.0"

// maxLineSize bounds a single line of the environment file. Lines longer
// than this fail the scan instead of being silently truncated.
const maxLineSize = 1024 * 1024

// markerPattern matches a line carrying the "IP:" marker and captures the
// value after it. The leading ".*" is greedy, so when a line carries the
// marker more than once the last one wins.
var markerPattern = regexp.MustCompile(`^.*IP:[ \t]*(.*)$`)

// Parse reads the whole environment text from r and returns the extracted
// addresses classified by privatePrefix. An empty privatePrefix falls back
// to DefaultPrivatePrefix.
//
// Input without any marker lines yields an empty AddressList and no error.
//
// Example:
//
//	manager IP: 10.0.0.5
//	public  IP: 54.1.2.3
//	worker  IP: 10.0.0.6
//
// yields Private ["10.0.0.5", "10.0.0.6"] and Public ["54.1.2.3"].
func Parse(r io.Reader, privatePrefix string) (model.AddressList, error) {
	addrs, err := extract(r)
	if err != nil {
		return model.AddressList{}, err
	}
	return Classify(addrs, privatePrefix), nil
}

// ParseFile opens the environment file at path and parses it.
// A missing or unreadable file is returned as an error.
func ParseFile(path, privatePrefix string) (model.AddressList, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.AddressList{}, fmt.Errorf("failed to open environment file: %w", err)
	}
	defer f.Close()

	list, err := Parse(f, privatePrefix)
	if err != nil {
		return model.AddressList{}, fmt.Errorf("failed to read environment file %s: %w", path, err)
	}
	return list, nil
}

// Classify splits addresses into private and public lists by prefix,
// preserving the relative order within each list.
func Classify(addrs []string, privatePrefix string) model.AddressList {
	if privatePrefix == "" {
		privatePrefix = DefaultPrivatePrefix
	}
	// Plain string prefix, not a network match: "10.0" also matches
	// "10.01.2.3", exactly as the environment files are written.
	isPrivate := func(addr string, _ int) bool {
		return strings.HasPrefix(addr, privatePrefix)
	}
	return model.AddressList{
		Private: lo.Filter(addrs, isPrivate),
		Public:  lo.Reject(addrs, isPrivate),
	}
}

// ValidateAddresses checks that every address in the list is a valid IPv4
// or IPv6 address. The parser itself accepts any text; callers opt in to
// this check.
func ValidateAddresses(list model.AddressList) error {
	// Collect every bad address so the user can fix the file in one pass.
	var invalid []string
	for _, addr := range append(append([]string{}, list.Private...), list.Public...) {
		if _, err := netip.ParseAddr(addr); err != nil {
			invalid = append(invalid, addr)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid IP address(es): %s", strings.Join(invalid, ", "))
	}
	return nil
}

// extract scans r line by line and returns the raw marker values in
// encounter order.
func extract(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)

	var addrs []string
	for scanner.Scan() {
		m := markerPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		// The value runs to the end of the line. Trailing blanks are
		// dropped; a marker with nothing after it contributes nothing.
		value := strings.TrimRightFunc(m[1], unicode.IsSpace)
		if value == "" {
			continue
		}
		addrs = append(addrs, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return addrs, nil
}

// scanLines is a bufio.SplitFunc that ends a line at "\n", "\r" or "\r\n".
// Environment files exported from different tools mix all three.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to tell "\r" from "\r\n".
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
