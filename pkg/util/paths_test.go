package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeFilePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		want     string
		wantSafe bool
	}{
		{"simple file", "users.json", "users.json", true},
		{"nested path", "bodies/users.json", "bodies/users.json", true},
		{"dot segment cleaned", "./users.json", "users.json", true},
		{"inner dotdot resolving inside", "bodies/../users.json", "users.json", true},
		{"empty", "", "", false},
		{"absolute", "/etc/passwd", "", false},
		{"parent escape", "../secrets.json", "", false},
		{"deep parent escape", "a/../../secrets.json", "", false},
		{"bare dotdot", "..", "", false},
		{"backslash escape", `..\..\secrets.json`, "", false},
		{"backslash nested", `bodies\users.json`, "bodies/users.json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, safe := SafeFilePath(tt.path)
			assert.Equal(t, tt.wantSafe, safe)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "short", TruncateBody("short", 100))
	assert.Equal(t, "abc...(truncated)", TruncateBody("abcdef", 3))

	long := strings.Repeat("x", MaxLogBodySize+1)
	got := TruncateBody(long, 0)
	assert.Len(t, got, MaxLogBodySize+len("...(truncated)"))
}
