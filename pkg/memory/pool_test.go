package memory

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolReturnsEmptyBuffers(t *testing.T) {
	pool := NewBufferPool()

	buf := pool.Get()
	buf.WriteString("leftover")
	pool.Put(buf)

	again := pool.Get()
	assert.Zero(t, again.Len())
}

func TestBufferPoolDropsLargeBuffers(t *testing.T) {
	pool := NewBufferPoolWithLimit(16)

	big := pool.Get()
	big.Grow(1024)
	pool.Put(big)
	pool.Put(nil)

	assert.NotSame(t, big, pool.Get())
}

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int64
		exceeded bool
		want     string
	}{
		{"under", "hello", 8, false, "hello"},
		{"exact", "12345678", 8, false, "12345678"},
		{"over", "123456789abc", 8, true, "123456789"},
		{"empty", "", 8, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exceeded, err := ReadLimited(&buf, strings.NewReader(tt.input), tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.exceeded, exceeded)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestReadLimitedError(t *testing.T) {
	boom := errors.New("boom")
	var buf bytes.Buffer
	_, err := ReadLimited(&buf, iotest.ErrReader(boom), 8)
	assert.ErrorIs(t, err, boom)
}
