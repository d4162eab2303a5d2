package pkg

import (
	"fmt"
	"testing"
)

func TestIsEndpointError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"disabled", ErrDisabled, true},
		{"overflow", ErrBufferOverflow, true},
		{"stall", ErrStall, true},
		{"wrapped disabled", fmt.Errorf("write ntb: %w", ErrDisabled), true},
		{"protocol", ErrProtocol, false},
		{"too small", ErrBufferTooSmall, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEndpointError(tt.err); got != tt.want {
				t.Errorf("IsEndpointError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
