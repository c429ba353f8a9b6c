package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"cv.pdf":                   "cv.pdf",
		"../../etc/passwd":         "passwd",
		`..\..\windows\system.ini`: "system.ini",
		"/abs/path/resume.pdf":     "resume.pdf",
		"dir/":                     "dir",
		"..":                       "",
		".":                        "",
		"":                         "",
		"/":                        "",
		"  spaced.pdf ":            "spaced.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), "input %q", in)
	}
}

func TestPointers(t *testing.T) {
	assert.Equal(t, 3, *IntPtr(3))
	assert.Equal(t, int64(1<<40), *Int64Ptr(1 << 40))
	assert.Nil(t, TimePtr(time.Time{}))
	now := time.Now()
	assert.Equal(t, now, *TimePtr(now))
}
