package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLockContention(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"nil":        {nil, false},
		"other":      {errors.New("boom"), false},
		"busy text":  {errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		"wrapped":    {fmt.Errorf("delete: %w", errors.New("database is locked")), true},
		"constraint": {errors.New("UNIQUE constraint failed"), false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, isLockContention(tt.err))
		})
	}
}
