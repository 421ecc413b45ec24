// internal/validation/registry.go
package validation

import "sort"

// Registry is the closed set of named validators the runtime ships with.
// Contracts may only reference names it resolves; resolution happens at
// contract load, so an unknown name can never surface mid-request.
type Registry struct {
	validators map[string]Validator

	// family resolves derived validator names (the unique<Field> family)
	// that cannot be enumerated ahead of the contract.
	family func(name string) (Validator, bool)
}

func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]Validator)}
}

// Register binds a validator under a name. Registration happens once at
// boot; later registrations under the same name replace earlier ones.
func (r *Registry) Register(name string, v Validator) {
	r.validators[name] = v
}

// RegisterFamily installs the resolver for derived validator names.
func (r *Registry) RegisterFamily(resolve func(name string) (Validator, bool)) {
	r.family = resolve
}

// Has reports whether a validator name resolves. Satisfies the resolver the
// contract loader checks names against.
func (r *Registry) Has(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Resolve returns the validator registered under name, consulting the
// derived-name family when no direct registration exists.
func (r *Registry) Resolve(name string) (Validator, bool) {
	if v, ok := r.validators[name]; ok {
		return v, true
	}
	if r.family != nil {
		return r.family(name)
	}
	return nil, false
}

// Names returns the directly registered validator names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.validators))
	for name := range r.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
