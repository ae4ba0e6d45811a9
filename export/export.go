// Package export hands an analysis report to the user as a plain text file.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the name the report is offered under
const FileName = "seo_issues.txt"

const dataURIPrefix = "data:text/plain;charset=utf-8,"

// WriteFile writes text to dir/seo_issues.txt, byte for byte, and returns the path
func WriteFile(dir, text string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName)

	// Write to a temporary file first, then rename over the real one
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return path, nil
}

// DataURI returns a data: URI carrying text as a UTF-8 plain text document
func DataURI(text string) string {
	return dataURIPrefix + EncodeURIComponent(text)
}

// EncodeURIComponent percent-encodes every byte of s except the unreserved
// characters A-Z a-z 0-9 - _ . ! ~ * ' ( )
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
