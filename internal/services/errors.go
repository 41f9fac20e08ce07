package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRunFatal reports whether err must abort the whole batch rather than a
// single tomogram. Configuration and validation failures are run-fatal.
func IsRunFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrValidation)
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
