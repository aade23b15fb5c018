package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUUIDIsTimeOrdered(t *testing.T) {
	first, err := NewUUID()
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := NewUUID()
	require.NoError(t, err)

	assert.True(t, ValidateUUID(first))
	assert.True(t, ValidateUUID(second))
	assert.NotEqual(t, first, second)

	// UUIDv7 sorts by generation time, which saga ids rely on for
	// chronological listing.
	assert.Less(t, first, second)
}

func TestNewUUIDOrDefault(t *testing.T) {
	id := NewUUIDOrDefault()
	assert.True(t, ValidateUUID(id))
}

func TestMustNewUUID(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.True(t, ValidateUUID(MustNewUUID()))
	})
}

func TestValidateUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid", "123e4567-e89b-12d3-a456-426614174000", true},
		{"garbage", "not-a-uuid", false},
		{"truncated", "123e4567", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateUUID(tt.input))
			_, err := ParseUUID(tt.input)
			assert.Equal(t, tt.want, err == nil)
		})
	}
}
