package censo

import (
	"errors"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"1234567", true},
		{"1234567890", true},
		{"801234567", true},
		{"123456", false},
		{"12345678901", false},
		{"", false},
		{"12345a7", false},
		{"1.234.567", false},
		{"１２３４５６７", false}, // full-width digits
		{" 1234567", false},
	}
	for _, tt := range tests {
		err := ValidateIdentifier(tt.in)
		if tt.ok && err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v", tt.in, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("ValidateIdentifier(%q) = %v, want ErrInvalidIdentifier", tt.in, err)
		}
	}
}
