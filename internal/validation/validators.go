// internal/validation/validators.go
package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"contract-runtime/internal/common/errors"
	"contract-runtime/internal/store"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// RegisterBuiltins installs the runtime's built-in named validators plus
// the unique<Field> family, which derives the checked field from the
// validator name (uniqueEmail -> email) and the collection from the
// request.
func RegisterBuiltins(r *Registry, s store.Store) {
	r.Register("validateRequired", ValidatorFunc(validateRequired))
	r.Register("validateAddress", ValidatorFunc(validateAddress))
	r.Register("validateBirthDate", ValidatorFunc(validateBirthDate))
	r.Register("validateEmail", ValidatorFunc(validateEmail))

	r.RegisterFamily(func(name string) (Validator, bool) {
		const prefix = "unique"
		if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
			return nil, false
		}
		field := name[len(prefix):]
		field = strings.ToLower(field[:1]) + field[1:]
		return uniqueField(s, field), true
	})
}

// validateRequired re-checks required-looking fields after the structural
// pass: empty strings satisfy JSON Schema "required" but not this rule.
func validateRequired(_ context.Context, req Request) error {
	var issues []errors.FieldIssue
	for field, v := range req.Body {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			issues = append(issues, errors.FieldIssue{
				Field:   field,
				Message: fmt.Sprintf("%s must not be blank", field),
				Code:    "required",
			})
		}
	}
	if len(issues) > 0 {
		return errors.NewValidationFailedError(issues)
	}
	return nil
}

func validateAddress(_ context.Context, req Request) error {
	addr, ok := req.Body["address"]
	if !ok || addr == nil {
		return nil
	}
	s, ok := addr.(string)
	if !ok || len(strings.TrimSpace(s)) < 5 {
		return errors.NewValidationFailedError([]errors.FieldIssue{{
			Field:   "address",
			Message: "address must be at least 5 characters",
			Code:    "address",
		}})
	}
	return nil
}

// validateBirthDate rejects dates in the future or implausibly old
// (before 1900). Accepts date or date-time forms.
func validateBirthDate(_ context.Context, req Request) error {
	raw, ok := req.Body["birthDate"]
	if !ok || raw == nil {
		return nil
	}
	s, _ := raw.(string)

	var t time.Time
	var err error
	if t, err = time.Parse("2006-01-02", s); err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return errors.NewValidationFailedError([]errors.FieldIssue{{
				Field:   "birthDate",
				Message: "birthDate must be a date (YYYY-MM-DD)",
				Code:    "format",
			}})
		}
	}

	if t.After(time.Now()) {
		return errors.NewValidationFailedError([]errors.FieldIssue{{
			Field:   "birthDate",
			Message: "birthDate must not be in the future",
			Code:    "range",
		}})
	}
	if t.Year() < 1900 {
		return errors.NewValidationFailedError([]errors.FieldIssue{{
			Field:   "birthDate",
			Message: "birthDate is out of the plausible range",
			Code:    "range",
		}})
	}
	return nil
}

func validateEmail(_ context.Context, req Request) error {
	raw, ok := req.Body["email"]
	if !ok || raw == nil {
		return nil
	}
	s, _ := raw.(string)
	if !emailPattern.MatchString(s) {
		return errors.NewValidationFailedError([]errors.FieldIssue{{
			Field:   "email",
			Message: "email is not a valid address",
			Code:    "format",
		}})
	}
	return nil
}

// uniqueField rejects a create whose field value already exists in the
// collection. A duplicate is a persistence conflict, not a validation
// failure: the request was well-formed, the state disagreed.
func uniqueField(s store.Store, field string) ValidatorFunc {
	return func(ctx context.Context, req Request) error {
		v, ok := req.Body[field]
		if !ok || v == nil || req.Collection == "" {
			return nil
		}

		if field == store.KeyField {
			key, _ := v.(string)
			if key == "" {
				return nil
			}
			if _, err := s.Read(ctx, req.Collection, key); err == nil {
				return errors.NewPersistenceConflictError(
					fmt.Sprintf("record %q already exists in %s", key, req.Collection))
			}
			return nil
		}

		page, err := s.Query(ctx, req.Collection, store.Query{
			Predicates: []store.Predicate{{Field: field, Op: store.OpEq, Value: v}},
			Limit:      1,
		})
		if err != nil {
			return errors.NewPersistenceFailedError(fmt.Errorf("uniqueness check on %s: %w", field, err))
		}
		if len(page.Records) > 0 {
			return errors.NewPersistenceConflictError(
				fmt.Sprintf("%s %v already exists in %s", field, v, req.Collection))
		}
		return nil
	}
}
