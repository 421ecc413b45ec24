// internal/contract/model.go
// Package contract holds the in-memory, normalized representation of a
// loaded contract document: resources, operations, schemas, and the
// behavioral extensions the runtime interprets. A Contract is immutable
// after load; reloads produce a new instance.
package contract

import "strings"

// Extension field names, namespaced with the reserved x-runtime- prefix.
// Unrecognized x- fields are ignored, not rejected.
const (
	ExtSoftDelete = "x-runtime-soft-delete"
	ExtValidators = "x-runtime-validators"
	ExtProxy      = "x-runtime-proxy"
	ExtEvent      = "x-runtime-event"
	ExtPagination = "x-runtime-pagination"
	ExtFilterable = "x-runtime-filterable"
	ExtResource   = "x-runtime-resource"
)

// OperationKind classifies an operation by verb and path shape.
type OperationKind string

const (
	KindCreate OperationKind = "create"
	KindGet    OperationKind = "get"
	KindList   OperationKind = "list"
	KindUpdate OperationKind = "update"
	KindDelete OperationKind = "delete"
)

// PaginationStrategy selects how list operations page through records.
type PaginationStrategy string

const (
	PaginationOffset PaginationStrategy = "offset"
	PaginationCursor PaginationStrategy = "cursor"
)

// Contract is the normalized, immutable model of one contract document.
type Contract struct {
	ID         string
	Version    string
	Resources  map[string]*Resource
	Operations []*Operation

	routes *routeIndex
}

// Resource is a named schema with ordered properties and behavioral
// annotations.
type Resource struct {
	Name       string
	Collection string
	Schema     map[string]interface{}
	Properties []Property
	SoftDelete *SoftDelete
	Validators []string
	Pagination Pagination
}

// Property is one schema property in declaration order.
type Property struct {
	Name     string
	Type     string
	Format   string
	Required bool
}

// SoftDelete is the discriminator property/value a DELETE sets instead of
// removing the record.
type SoftDelete struct {
	Property string
	Value    string
}

// Pagination is the resource's configured paging strategy.
type Pagination struct {
	Strategy    PaginationStrategy
	MaxPageSize int
}

// ProxyDescriptor is the read-only upstream configuration of a
// proxy/transform operation.
type ProxyDescriptor struct {
	URL             string
	Method          string
	RequestMapping  map[string]string
	ResponseMapping map[string]string
}

// EventDescriptor names the change event an operation emits.
type EventDescriptor struct {
	Name  string
	Topic string
}

// Operation is a (path, verb) pair bound to a resource.
type Operation struct {
	ID             string
	Method         string
	Path           string
	Kind           OperationKind
	Resource       *Resource
	RequestSchema  map[string]interface{}
	ResponseSchema map[string]interface{}
	Filterable     []string
	Validators     []string
	HasValidators  bool // distinguishes an empty operation-level list from none
	SoftDelete     *SoftDelete
	Proxy          *ProxyDescriptor
	Event          *EventDescriptor
}

// Resolve matches a method and request path against the route index,
// returning the operation and path-parameter bindings.
func (c *Contract) Resolve(method, path string) (*Operation, map[string]string, bool) {
	return c.routes.resolve(method, path)
}

// EffectiveValidators returns the validator list in force for the operation.
// Operation-level declarations override the resource-level list entirely;
// there is no merging.
func (op *Operation) EffectiveValidators() []string {
	if op.HasValidators {
		return op.Validators
	}
	if op.Resource != nil {
		return op.Resource.Validators
	}
	return nil
}

// EffectiveSoftDelete returns the soft-delete annotation in force for the
// operation, operation-level winning over resource-level.
func (op *Operation) EffectiveSoftDelete() *SoftDelete {
	if op.SoftDelete != nil {
		return op.SoftDelete
	}
	if op.Resource != nil {
		return op.Resource.SoftDelete
	}
	return nil
}

// IsRead reports whether the operation is a pure read.
func (op *Operation) IsRead() bool {
	return op.Kind == KindGet || op.Kind == KindList
}

// DefaultEventName derives the change-event name when the contract declares
// none: <Resource>Created, <Resource>Updated, <Resource>Deleted or
// <Resource>SoftDeleted.
func (op *Operation) DefaultEventName(softDeleted bool) string {
	name := "Record"
	if op.Resource != nil {
		name = op.Resource.Name
	}
	switch op.Kind {
	case KindCreate:
		return name + "Created"
	case KindUpdate:
		return name + "Updated"
	case KindDelete:
		if softDeleted {
			return name + "SoftDeleted"
		}
		return name + "Deleted"
	}
	return name + "Changed"
}

// PathParamNames returns the parameter names of a path template in order,
// e.g. /pets/{petId} -> [petId].
func PathParamNames(path string) []string {
	var names []string
	for _, seg := range splitPath(path) {
		if isParam(seg) {
			names = append(names, seg[1:len(seg)-1])
		}
	}
	return names
}

// collectionFromPath derives the store collection from the first path
// segment, e.g. /pets/{petId} -> pets.
func collectionFromPath(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			return seg
		}
	}
	return ""
}
