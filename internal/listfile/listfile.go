// Package listfile reads and writes the plain-text image list format
// shared by the list-images, download-images and upload-images commands.
package listfile

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Record markers. FILE records carry title and URL; FILE2 records add a
// precomputed local filename.
const (
	MarkerV1 = "FILE"
	MarkerV2 = "FILE2"
)

// Entry is one image in a list file. Name is the upload title without
// the namespace prefix; Filename is the sanitized local filename.
type Entry struct {
	Name     string
	URL      string
	Filename string
}

var namespacePrefix = regexp.MustCompile(`^.+?:(.*)$`)

// StripNamespace removes the leading "File:"-style namespace prefix.
func StripNamespace(title string) (string, error) {
	m := namespacePrefix.FindStringSubmatch(title)
	if m == nil {
		return "", fmt.Errorf("title %q has no namespace prefix", title)
	}
	return m[1], nil
}

// Read parses a list file in either format, sniffed per record from the
// marker line. Legacy FILE records derive the local filename from the
// title by stripping its namespace prefix.
func Read(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	line := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		line++
		return strings.TrimSpace(sc.Text()), true
	}

	for {
		marker, ok := next()
		if !ok {
			break
		}
		if marker == "" {
			continue
		}
		if marker != MarkerV1 && marker != MarkerV2 {
			return nil, fmt.Errorf("line %d: expected %s or %s marker, got %q", line, MarkerV1, MarkerV2, marker)
		}

		title, ok1 := next()
		url, ok2 := next()
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("line %d: truncated record", line)
		}

		entry := Entry{URL: url}
		switch marker {
		case MarkerV2:
			filename, ok := next()
			if !ok {
				return nil, fmt.Errorf("line %d: truncated record", line)
			}
			entry.Name = title
			entry.Filename = filename
		case MarkerV1:
			name, err := StripNamespace(title)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			entry.Name = name
			entry.Filename = name
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Write emits one FILE2 record.
func Write(w io.Writer, e Entry) error {
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n", MarkerV2, e.Name, e.URL, e.Filename)
	return err
}
