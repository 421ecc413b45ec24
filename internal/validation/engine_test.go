// internal/validation/engine_test.go
package validation

import (
	"context"
	"testing"

	"contract-runtime/internal/common/errors"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/contract"
	"contract-runtime/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func petOperation(validators ...string) *contract.Operation {
	return &contract.Operation{
		ID:     "createPet",
		Method: "POST",
		Path:   "/pets",
		Kind:   contract.KindCreate,
		RequestSchema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"name", "species"},
			"properties": map[string]interface{}{
				"id":        map[string]interface{}{"type": "string"},
				"name":      map[string]interface{}{"type": "string"},
				"species":   map[string]interface{}{"type": "string"},
				"age":       map[string]interface{}{"type": "integer"},
				"birthDate": map[string]interface{}{"type": "string"},
				"email":     map[string]interface{}{"type": "string"},
			},
		},
		Validators:    validators,
		HasValidators: len(validators) > 0,
	}
}

func newEngine(t *testing.T, s store.Store) *Engine {
	t.Helper()
	registry := NewRegistry()
	RegisterBuiltins(registry, s)
	return NewEngine(registry, logger.NewNoOpLogger())
}

func TestStructuralValidationCollectsAllIssues(t *testing.T) {
	engine := newEngine(t, store.NewMemory())

	err := engine.Validate(context.Background(), petOperation(), Request{
		Body: map[string]interface{}{
			// name and species missing, age has the wrong type
			"age": "not-a-number",
		},
	})
	require.Error(t, err)

	rtErr := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeValidationFailed, rtErr.Code)
	require.Len(t, rtErr.Issues, 3)

	fields := make(map[string]bool)
	for _, issue := range rtErr.Issues {
		fields[issue.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["species"])
	assert.True(t, fields["age"])
}

func TestNamedValidatorsRunAfterStructuralPass(t *testing.T) {
	engine := newEngine(t, store.NewMemory())

	// structural failure: named validator must not mask the field issues
	err := engine.Validate(context.Background(), petOperation("validateBirthDate"), Request{
		Body: map[string]interface{}{"age": 3},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.Normalize(err).Code)
	assert.NotEmpty(t, errors.Normalize(err).Issues)

	// structurally clean, named validator rejects
	err = engine.Validate(context.Background(), petOperation("validateBirthDate"), Request{
		Body: map[string]interface{}{
			"name":      "rex",
			"species":   "dog",
			"birthDate": "2999-01-01",
		},
	})
	require.Error(t, err)
	rtErr := errors.Normalize(err)
	require.Len(t, rtErr.Issues, 1)
	assert.Equal(t, "birthDate", rtErr.Issues[0].Field)
}

func TestNamedValidatorsStopAtFirstFailure(t *testing.T) {
	registry := NewRegistry()
	calls := []string{}
	registry.Register("first", ValidatorFunc(func(context.Context, Request) error {
		calls = append(calls, "first")
		return errors.NewValidationFailedError([]errors.FieldIssue{{Field: "x", Message: "bad"}})
	}))
	registry.Register("second", ValidatorFunc(func(context.Context, Request) error {
		calls = append(calls, "second")
		return nil
	}))
	engine := NewEngine(registry, logger.NewNoOpLogger())

	op := petOperation("first", "second")
	err := engine.Validate(context.Background(), op, Request{
		Body: map[string]interface{}{"name": "rex", "species": "dog"},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"first"}, calls)
}

func TestValidateEmail(t *testing.T) {
	engine := newEngine(t, store.NewMemory())

	tests := []struct {
		email string
		valid bool
	}{
		{"dev@example.com", true},
		{"first.last+tag@sub.example.org", true},
		{"not-an-email", false},
		{"missing@tld", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := engine.Validate(context.Background(), petOperation("validateEmail"), Request{
				Body: map[string]interface{}{
					"name": "rex", "species": "dog", "email": tt.email,
				},
			})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestUniqueFamilyReportsConflict(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Create(context.Background(), "pets", store.Record{
		"id": "p1", "name": "rex",
	})
	require.NoError(t, err)

	engine := newEngine(t, mem)
	registry := NewRegistry()
	RegisterBuiltins(registry, mem)
	assert.True(t, registry.Has("uniqueName"), "derived names resolve against the family")
	assert.False(t, registry.Has("unique"))

	err = engine.Validate(context.Background(), petOperation("uniqueName"), Request{
		Body:       map[string]interface{}{"name": "rex", "species": "dog"},
		Collection: "pets",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePersistenceConflict, errors.Normalize(err).Code)

	err = engine.Validate(context.Background(), petOperation("uniqueName"), Request{
		Body:       map[string]interface{}{"name": "bella", "species": "dog"},
		Collection: "pets",
	})
	assert.NoError(t, err)
}
