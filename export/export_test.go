package export

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const report = "SEO Issues:\n- Missing H1 tag.\n- Image missing alt attribute: https://example.com/ü.png"

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := WriteFile(dir, report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "seo_issues.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte(report), data)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileOverwrites(t *testing.T) {
	dir := t.TempDir()

	_, err := WriteFile(dir, "first, and much longer than the second")
	require.NoError(t, err)
	path, err := WriteFile(dir, "second")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestEncodeURIComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcXYZ019", "abcXYZ019"},
		{"-_.!~*'()", "-_.!~*'()"},
		{"a b", "a%20b"},
		{"SEO Issues:\n- x", "SEO%20Issues%3A%0A-%20x"},
		{"1%", "1%25"},
		{"/?#&=+", "%2F%3F%23%26%3D%2B"},
		{"ü", "%C3%BC"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeURIComponent(tt.in))
		})
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	uri := DataURI(report)

	require.True(t, strings.HasPrefix(uri, "data:text/plain;charset=utf-8,"))
	decoded, err := url.PathUnescape(strings.TrimPrefix(uri, "data:text/plain;charset=utf-8,"))
	require.NoError(t, err)
	assert.Equal(t, report, decoded)
}
