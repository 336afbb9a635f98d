package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError holds all validation failures for a config file.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

var (
	validatorOnce sync.Once
	structValid   *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		structValid = validator.New(validator.WithRequiredStructEnabled())
	})
	return structValid
}

// validate runs struct-tag validation (required fields, url/oneof/gt
// constraints) via go-playground/validator, then the cross-field and
// semantic invariants a struct tag alone can't express: unique server
// names and "exactly one of command/transport" (spec §3).
func validate(cfg *ProxyConfig) error {
	var errs []string

	if err := getValidator().Struct(cfg); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				errs = append(errs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	names := make(map[string]bool, len(cfg.Servers))
	for i, s := range cfg.Servers {
		if names[s.Name] {
			errs = append(errs, fmt.Sprintf("servers[%d]: duplicate name %q", i, s.Name))
		}
		names[s.Name] = true

		switch {
		case s.Command == nil && s.Transport == nil:
			errs = append(errs, fmt.Sprintf("servers[%d] %q: one of command or transport is required", i, s.Name))
		case s.Command != nil && s.Transport != nil:
			errs = append(errs, fmt.Sprintf("servers[%d] %q: command and transport are mutually exclusive", i, s.Name))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
