// internal/validation/engine.go
package validation

import (
	"context"
	"fmt"

	"contract-runtime/internal/common/errors"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/contract"
	"contract-runtime/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// Request is the material a validator sees: the (already decoded) request
// body, query parameters, bound path parameters, the target collection and
// the caller identity.
type Request struct {
	Body       map[string]interface{}
	Params     map[string]string
	PathParams map[string]string
	Collection string
	Principal  *models.Principal
}

// Validator is one named validation rule. A nil error means the request
// passed; a *errors.RuntimeError with field issues reports the failure.
type Validator interface {
	Validate(ctx context.Context, req Request) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, req Request) error

func (f ValidatorFunc) Validate(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Engine runs the two-stage validation pass: structural schema validation
// first, collecting every failure, then the operation's named validators in
// declared order, stopping at the first failure.
type Engine struct {
	registry *Registry
	logger   logger.Logger
}

func NewEngine(registry *Registry, log logger.Logger) *Engine {
	return &Engine{registry: registry, logger: log}
}

// Validate checks a request against an operation. The returned error is nil
// or a VALIDATION_FAILED (or validator-chosen) RuntimeError. Structural
// issues are reported together; named validators short-circuit.
func (e *Engine) Validate(ctx context.Context, op *contract.Operation, req Request) error {
	if issues := e.structural(op, req.Body); len(issues) > 0 {
		return errors.NewValidationFailedError(issues)
	}

	for _, name := range op.EffectiveValidators() {
		v, ok := e.registry.Resolve(name)
		if !ok {
			// Names are resolved at contract load; reaching here means the
			// registry changed underneath a live snapshot.
			return errors.NewInternalError(fmt.Errorf("validator %q not registered", name))
		}
		if err := v.Validate(ctx, req); err != nil {
			e.logger.Debug("named validator rejected request", map[string]interface{}{
				"operation": op.ID,
				"validator": name,
			})
			return err
		}
	}
	return nil
}

func (e *Engine) structural(op *contract.Operation, body map[string]interface{}) []errors.FieldIssue {
	if op.RequestSchema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(op.RequestSchema)
	docLoader := gojsonschema.NewGoLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return []errors.FieldIssue{{
			Field:   "",
			Message: fmt.Sprintf("request body could not be validated: %v", err),
			Code:    "schema",
		}}
	}
	if result.Valid() {
		return nil
	}

	issues := make([]errors.FieldIssue, 0, len(result.Errors()))
	for _, rerr := range result.Errors() {
		field := rerr.Field()
		if field == "(root)" {
			if prop, ok := rerr.Details()["property"].(string); ok {
				field = prop
			}
		}
		issues = append(issues, errors.FieldIssue{
			Field:   field,
			Message: rerr.Description(),
			Code:    rerr.Type(),
		})
	}
	return issues
}
