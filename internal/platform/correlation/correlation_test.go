package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 8)
	assert.NotEqual(t, id, NewID())
}

func TestID_Missing(t *testing.T) {
	_, ok := ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	got, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	same, again := Ensure(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, same)
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc12345", true},
		{"req_01-XYZ", true},
		{"", false},
		{"has space", false},
		{"line\nbreak", false},
		{"ünïcode", false},
		{string(make([]byte, 65)), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Valid(tt.id), "id %q", tt.id)
	}
}
