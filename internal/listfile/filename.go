package listfile

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/unicode/norm"
)

var illegalFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SafeFilename derives an NTFS-compliant local filename from an image
// title. The zero-padded index prefix disambiguates titles that collide
// after sanitization and preserves the original listing order. The result
// is a pure function of its inputs.
func SafeFilename(index int, title string) string {
	name := norm.NFKC.String(fmt.Sprintf("%05d-%s", index, strings.TrimSpace(title)))
	return strings.TrimSpace(illegalFilenameChars.ReplaceAllString(name, ""))
}

// ConfineToEncoding drops every rune not representable in the named IANA
// encoding, e.g. "windows-1251".
func ConfineToEncoding(s, encodingName string) (string, error) {
	enc, err := ianaindex.IANA.Encoding(encodingName)
	if err != nil {
		return "", fmt.Errorf("unknown encoding %q: %w", encodingName, err)
	}
	if enc == nil {
		return "", fmt.Errorf("encoding %q has no decoder", encodingName)
	}

	encoder := enc.NewEncoder()
	var b strings.Builder
	for _, r := range s {
		if _, err := encoder.String(string(r)); err == nil {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}
