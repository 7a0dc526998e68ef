package censo

import (
	"errors"
	"fmt"
)

// Errors returned by Service.Verify besides *verifier.SessionInitError.
var (
	ErrInvalidIdentifier = errors.New("censo: invalid identifier")
	ErrUnavailable       = errors.New("censo: no verification session available")
	ErrNotFound          = errors.New("censo: record not found")
)

// User-facing messages of the HTTP surface.
const (
	MsgInvalidFormat = "Formato de cédula inválido. Debe contener entre 7 y 10 dígitos."
	MsgTemporary     = "Error temporal al consultar la Registraduría. Por favor intente en unos minutos."
	MsgBadRequest    = "Solicitud inválida. Envíe un objeto JSON con el campo \"cedula\"."
)

// ValidateIdentifier accepts 7 to 10 ASCII digits.
func ValidateIdentifier(s string) error {
	if n := len(s); n < 7 || n > 10 {
		return fmt.Errorf("%w: %d characters", ErrInvalidIdentifier, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return fmt.Errorf("%w: non-digit at %d", ErrInvalidIdentifier, i)
		}
	}
	return nil
}
