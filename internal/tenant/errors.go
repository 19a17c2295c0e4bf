package tenant

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateSlug   = errors.New("tenant slug already taken")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrProvisionFailed = errors.New("tenant provisioning failed")
)

// ValidationError reports user-correctable signup input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}
