package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCappedBuffer(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		writes        []string
		want          string
		wantTruncated bool
	}{
		{name: "unlimited", limit: 0, writes: []string{"abc", "def"}, want: "abcdef"},
		{name: "under limit", limit: 10, writes: []string{"abc"}, want: "abc"},
		{name: "exactly at limit", limit: 6, writes: []string{"abc", "def"}, want: "abcdef"},
		{name: "split write", limit: 4, writes: []string{"abc", "def"}, want: "abcd", wantTruncated: true},
		{name: "writes after full", limit: 3, writes: []string{"abc", "d", "e"}, want: "abc", wantTruncated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newCappedBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				assert.NoError(t, err)
				assert.Equal(t, len(w), n, "writes must always report full consumption")
			}
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, tt.wantTruncated, b.Truncated())
		})
	}
}

func TestCappedBufferReplacesInvalidUTF8(t *testing.T) {
	b := newCappedBuffer(0)
	b.Write([]byte("ok \xff\xfe end"))
	assert.Equal(t, "ok \uFFFD end", b.String())
}
