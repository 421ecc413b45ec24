// internal/contract/load.go
package contract

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"contract-runtime/internal/common/errors"

	"gopkg.in/yaml.v3"
)

// ValidatorResolver is the closed validator registry the contract is checked
// against at load time. Unknown validator names referenced by a contract are
// a load-time failure, never a runtime surprise.
type ValidatorResolver interface {
	Has(name string) bool
}

const maxRefDepth = 10

var operationMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

// Load reads and normalizes a contract document from disk. Loading is
// atomic: either a fully validated Contract is returned or a
// CONTRACT_INVALID error; a partially-normalized model is never exposed.
func Load(path string, validators ValidatorResolver) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewContractInvalidError(fmt.Sprintf("read document: %v", err))
	}
	return Parse(data, validators)
}

// Parse normalizes a contract document from YAML or JSON bytes.
func Parse(data []byte, validators ValidatorResolver) (*Contract, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.NewContractInvalidError(fmt.Sprintf("parse document: %v", err))
	}
	doc, ok := nodeToValue(&root).(map[string]interface{})
	if !ok {
		return nil, errors.NewContractInvalidError("document root must be a mapping")
	}

	b := &builder{
		doc:        doc,
		validators: validators,
		schemas:    map[string]map[string]interface{}{},
		propOrder:  map[string][]string{},
	}
	if err := b.collectSchemas(&root); err != nil {
		return nil, err
	}
	return b.build()
}

type builder struct {
	doc        map[string]interface{}
	validators ValidatorResolver
	schemas    map[string]map[string]interface{}
	propOrder  map[string][]string
}

// collectSchemas walks components.schemas, keeping the document's property
// declaration order, which the map decoding discards.
func (b *builder) collectSchemas(root *yaml.Node) error {
	components, _ := b.doc["components"].(map[string]interface{})
	rawSchemas, _ := components["schemas"].(map[string]interface{})
	for name, v := range rawSchemas {
		schema, ok := v.(map[string]interface{})
		if !ok {
			return errors.NewContractInvalidError(fmt.Sprintf("schema %q is not a mapping", name))
		}
		b.schemas[name] = schema
	}

	schemasNode := findMapValue(findMapValue(documentRoot(root), "components"), "schemas")
	if schemasNode != nil && schemasNode.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(schemasNode.Content); i += 2 {
			name := schemasNode.Content[i].Value
			propsNode := findMapValue(schemasNode.Content[i+1], "properties")
			if propsNode == nil || propsNode.Kind != yaml.MappingNode {
				continue
			}
			order := make([]string, 0, len(propsNode.Content)/2)
			for j := 0; j+1 < len(propsNode.Content); j += 2 {
				order = append(order, propsNode.Content[j].Value)
			}
			b.propOrder[name] = order
		}
	}
	return nil
}

func (b *builder) build() (*Contract, error) {
	info, _ := b.doc["info"].(map[string]interface{})
	id, _ := info["title"].(string)
	version, _ := info["version"].(string)
	if id == "" || version == "" {
		return nil, errors.NewContractInvalidError("info.title and info.version are required")
	}

	resources, err := b.buildResources()
	if err != nil {
		return nil, err
	}

	operations, err := b.buildOperations(resources)
	if err != nil {
		return nil, err
	}
	if len(operations) == 0 {
		return nil, errors.NewContractInvalidError("document declares no operations")
	}

	if err := b.validate(resources, operations); err != nil {
		return nil, err
	}

	routes := newRouteIndex()
	for _, op := range operations {
		if !routes.add(op) {
			return nil, errors.NewContractInvalidError(
				fmt.Sprintf("duplicate route: %s %s", op.Method, op.Path))
		}
	}

	return &Contract{
		ID:         id,
		Version:    version,
		Resources:  resources,
		Operations: operations,
		routes:     routes,
	}, nil
}

func (b *builder) buildResources() (map[string]*Resource, error) {
	resources := make(map[string]*Resource, len(b.schemas))
	for name, schema := range b.schemas {
		resolved, err := b.resolveRefs(schema, 0)
		if err != nil {
			return nil, errors.NewContractInvalidError(
				fmt.Sprintf("schema %q: %v", name, err))
		}
		resolvedMap := resolved.(map[string]interface{})

		res := &Resource{
			Name:       name,
			Schema:     stripExtensions(resolvedMap),
			Pagination: Pagination{Strategy: PaginationOffset},
		}

		res.Properties = b.buildProperties(name, resolvedMap)

		if sd, err := parseSoftDelete(schema[ExtSoftDelete]); err != nil {
			return nil, errors.NewContractInvalidError(fmt.Sprintf("schema %q: %v", name, err))
		} else if sd != nil {
			res.SoftDelete = sd
		}

		if names, declared, err := parseValidatorList(schema[ExtValidators]); err != nil {
			return nil, errors.NewContractInvalidError(fmt.Sprintf("schema %q: %v", name, err))
		} else if declared {
			res.Validators = names
		}

		if pg, ok := schema[ExtPagination].(map[string]interface{}); ok {
			if s, ok := pg["strategy"].(string); ok {
				switch PaginationStrategy(s) {
				case PaginationOffset, PaginationCursor:
					res.Pagination.Strategy = PaginationStrategy(s)
				default:
					return nil, errors.NewContractInvalidError(
						fmt.Sprintf("schema %q: unknown pagination strategy %q", name, s))
				}
			}
			if mx, ok := toInt(pg["maxPageSize"]); ok {
				res.Pagination.MaxPageSize = mx
			}
		}

		resources[name] = res
	}
	return resources, nil
}

func (b *builder) buildProperties(schemaName string, schema map[string]interface{}) []Property {
	props, _ := schema["properties"].(map[string]interface{})
	required := map[string]bool{}
	if reqList, ok := schema["required"].([]interface{}); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	order := b.propOrder[schemaName]
	if len(order) == 0 {
		order = make([]string, 0, len(props))
		for name := range props {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	out := make([]Property, 0, len(order))
	for _, name := range order {
		prop, ok := props[name].(map[string]interface{})
		if !ok {
			continue
		}
		typ, _ := prop["type"].(string)
		format, _ := prop["format"].(string)
		out = append(out, Property{
			Name:     name,
			Type:     typ,
			Format:   format,
			Required: required[name],
		})
	}
	return out
}

func (b *builder) buildOperations(resources map[string]*Resource) ([]*Operation, error) {
	paths, _ := b.doc["paths"].(map[string]interface{})

	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	var operations []*Operation
	collectionResource := map[string]*Resource{}

	for _, path := range pathKeys {
		item, ok := paths[path].(map[string]interface{})
		if !ok {
			return nil, errors.NewContractInvalidError(fmt.Sprintf("path %q is not a mapping", path))
		}
		for _, method := range operationMethods {
			raw, ok := item[strings.ToLower(method)].(map[string]interface{})
			if !ok {
				continue
			}
			op, err := b.buildOperation(method, path, raw, resources)
			if err != nil {
				return nil, err
			}
			operations = append(operations, op)
			if op.Resource != nil {
				coll := collectionFromPath(path)
				if existing, ok := collectionResource[coll]; ok && existing != op.Resource {
					return nil, errors.NewContractInvalidError(
						fmt.Sprintf("path %q binds two resources: %s and %s", path, existing.Name, op.Resource.Name))
				}
				collectionResource[coll] = op.Resource
			}
		}
	}

	// Operations without a schema reference (typically DELETE) inherit the
	// resource bound to the same collection root.
	for _, op := range operations {
		if op.Resource == nil {
			op.Resource = collectionResource[collectionFromPath(op.Path)]
		}
		if op.Resource == nil && op.Proxy == nil {
			return nil, errors.NewContractInvalidError(
				fmt.Sprintf("operation %s %s is not bound to any resource", op.Method, op.Path))
		}
		if op.Resource != nil && op.Resource.Collection == "" {
			op.Resource.Collection = collectionFromPath(op.Path)
		}
	}

	return operations, nil
}

func (b *builder) buildOperation(method, path string, raw map[string]interface{}, resources map[string]*Resource) (*Operation, error) {
	op := &Operation{
		Method: method,
		Path:   path,
		Kind:   operationKind(method, path),
	}
	if id, ok := raw["operationId"].(string); ok && id != "" {
		op.ID = id
	} else {
		op.ID = strings.ToLower(method) + ":" + path
	}

	var refName string

	if body, ok := raw["requestBody"].(map[string]interface{}); ok {
		schema, name, err := b.extractSchema(body)
		if err != nil {
			return nil, errors.NewContractInvalidError(
				fmt.Sprintf("operation %s %s request schema: %v", method, path, err))
		}
		op.RequestSchema = schema
		if refName == "" {
			refName = name
		}
	}

	if schema, name, err := b.extractResponseSchema(raw); err != nil {
		return nil, errors.NewContractInvalidError(
			fmt.Sprintf("operation %s %s response schema: %v", method, path, err))
	} else {
		op.ResponseSchema = schema
		if refName == "" {
			refName = name
		}
	}

	if explicit, ok := raw[ExtResource].(string); ok && explicit != "" {
		refName = explicit
	}
	if refName != "" {
		res, ok := resources[refName]
		if !ok {
			return nil, errors.NewContractInvalidError(
				fmt.Sprintf("operation %s %s references unknown resource %q", method, path, refName))
		}
		op.Resource = res
	}

	if names, declared, err := parseValidatorList(raw[ExtValidators]); err != nil {
		return nil, errors.NewContractInvalidError(fmt.Sprintf("operation %s %s: %v", method, path, err))
	} else if declared {
		op.Validators = names
		op.HasValidators = true
	}

	if sd, err := parseSoftDelete(raw[ExtSoftDelete]); err != nil {
		return nil, errors.NewContractInvalidError(fmt.Sprintf("operation %s %s: %v", method, path, err))
	} else if sd != nil {
		op.SoftDelete = sd
	}

	if rawProxy, ok := raw[ExtProxy].(map[string]interface{}); ok {
		proxy, err := parseProxy(rawProxy)
		if err != nil {
			return nil, errors.NewContractInvalidError(fmt.Sprintf("operation %s %s: %v", method, path, err))
		}
		op.Proxy = proxy
	}

	if rawEvent, ok := raw[ExtEvent].(map[string]interface{}); ok {
		evt := &EventDescriptor{}
		evt.Name, _ = rawEvent["name"].(string)
		evt.Topic, _ = rawEvent["topic"].(string)
		op.Event = evt
	}

	if filterable, ok := raw[ExtFilterable].([]interface{}); ok {
		for _, f := range filterable {
			if s, ok := f.(string); ok {
				op.Filterable = append(op.Filterable, s)
			}
		}
	}

	return op, nil
}

// extractSchema pulls the application/json schema out of a requestBody or
// response object, resolving refs and reporting the referenced schema name.
func (b *builder) extractSchema(container map[string]interface{}) (map[string]interface{}, string, error) {
	content, _ := container["content"].(map[string]interface{})
	media, _ := content["application/json"].(map[string]interface{})
	rawSchema, ok := media["schema"].(map[string]interface{})
	if !ok {
		return nil, "", nil
	}

	name := refSchemaName(rawSchema)
	resolved, err := b.resolveRefs(rawSchema, 0)
	if err != nil {
		return nil, "", err
	}
	return stripExtensions(resolved.(map[string]interface{})), name, nil
}

func (b *builder) extractResponseSchema(raw map[string]interface{}) (map[string]interface{}, string, error) {
	responses, _ := raw["responses"].(map[string]interface{})
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		resp, ok := responses[code].(map[string]interface{})
		if !ok {
			continue
		}
		schema, name, err := b.extractSchema(resp)
		if err != nil || schema != nil {
			return schema, name, err
		}
	}
	return nil, "", nil
}

// resolveRefs replaces $ref nodes with the referenced schema, recursively.
func (b *builder) resolveRefs(v interface{}, depth int) (interface{}, error) {
	if depth > maxRefDepth {
		return nil, fmt.Errorf("schema reference nesting exceeds %d levels", maxRefDepth)
	}
	switch node := v.(type) {
	case map[string]interface{}:
		if ref, ok := node["$ref"].(string); ok {
			name := refName(ref)
			if name == "" {
				return nil, fmt.Errorf("unsupported reference %q", ref)
			}
			target, ok := b.schemas[name]
			if !ok {
				return nil, fmt.Errorf("unresolvable reference %q", ref)
			}
			return b.resolveRefs(deepCopy(target), depth+1)
		}
		out := make(map[string]interface{}, len(node))
		for k, val := range node {
			resolved, err := b.resolveRefs(val, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, val := range node {
			resolved, err := b.resolveRefs(val, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// validate applies the load-time invariants after normalization.
func (b *builder) validate(resources map[string]*Resource, operations []*Operation) error {
	for _, op := range operations {
		if op.Proxy != nil && (op.SoftDelete != nil || (op.Resource != nil && op.Resource.SoftDelete != nil && op.Kind == KindDelete)) {
			return errors.NewContractInvalidError(
				fmt.Sprintf("operation %s %s declares both proxy and soft-delete extensions", op.Method, op.Path))
		}

		for _, name := range op.EffectiveValidators() {
			if !b.validators.Has(name) {
				return errors.NewContractInvalidError(
					fmt.Sprintf("operation %s %s references unknown validator %q", op.Method, op.Path, name))
			}
		}

		sd := op.EffectiveSoftDelete()
		if sd != nil && op.Resource != nil {
			if !hasProperty(op.Resource, sd.Property) {
				return errors.NewContractInvalidError(
					fmt.Sprintf("resource %q: soft-delete property %q does not exist", op.Resource.Name, sd.Property))
			}
		}

		// Exactly one discriminator per resource: operation-level overrides
		// must agree with the resource-level property when both exist.
		if op.SoftDelete != nil && op.Resource != nil && op.Resource.SoftDelete != nil &&
			op.SoftDelete.Property != op.Resource.SoftDelete.Property {
			return errors.NewContractInvalidError(
				fmt.Sprintf("resource %q: conflicting soft-delete discriminators %q and %q",
					op.Resource.Name, op.Resource.SoftDelete.Property, op.SoftDelete.Property))
		}
	}

	for name, res := range resources {
		if res.SoftDelete != nil && !hasProperty(res, res.SoftDelete.Property) {
			return errors.NewContractInvalidError(
				fmt.Sprintf("resource %q: soft-delete property %q does not exist", name, res.SoftDelete.Property))
		}
		for _, v := range res.Validators {
			if !b.validators.Has(v) {
				return errors.NewContractInvalidError(
					fmt.Sprintf("resource %q references unknown validator %q", name, v))
			}
		}
	}
	return nil
}

// ==========================
// helpers
// ==========================

func operationKind(method, path string) OperationKind {
	segs := splitPath(path)
	itemPath := len(segs) > 0 && isParam(segs[len(segs)-1])
	switch method {
	case "GET":
		if itemPath {
			return KindGet
		}
		return KindList
	case "POST":
		return KindCreate
	case "PUT", "PATCH":
		return KindUpdate
	case "DELETE":
		return KindDelete
	}
	return KindGet
}

func parseSoftDelete(v interface{}) (*SoftDelete, error) {
	raw, ok := v.(map[string]interface{})
	if !ok {
		if v != nil {
			return nil, fmt.Errorf("%s must be a mapping", ExtSoftDelete)
		}
		return nil, nil
	}
	prop, _ := raw["property"].(string)
	value, _ := raw["value"].(string)
	if prop == "" || value == "" {
		return nil, fmt.Errorf("%s requires property and value", ExtSoftDelete)
	}
	return &SoftDelete{Property: prop, Value: value}, nil
}

func parseValidatorList(v interface{}) ([]string, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, false, fmt.Errorf("%s must be a list of validator names", ExtValidators)
	}
	names := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false, fmt.Errorf("%s entries must be strings", ExtValidators)
		}
		names = append(names, s)
	}
	return names, true, nil
}

func parseProxy(raw map[string]interface{}) (*ProxyDescriptor, error) {
	proxy := &ProxyDescriptor{
		RequestMapping:  map[string]string{},
		ResponseMapping: map[string]string{},
	}
	proxy.URL, _ = raw["url"].(string)
	proxy.Method, _ = raw["method"].(string)
	if proxy.URL == "" {
		return nil, fmt.Errorf("%s requires url", ExtProxy)
	}
	if proxy.Method == "" {
		proxy.Method = "GET"
	}
	if m, ok := raw["requestMapping"].(map[string]interface{}); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				proxy.RequestMapping[k] = s
			}
		}
	}
	if m, ok := raw["responseMapping"].(map[string]interface{}); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				proxy.ResponseMapping[k] = s
			}
		}
	}
	return proxy, nil
}

func refSchemaName(schema map[string]interface{}) string {
	if ref, ok := schema["$ref"].(string); ok {
		return refName(ref)
	}
	// Array responses bind the operation to their item schema.
	if items, ok := schema["items"].(map[string]interface{}); ok {
		if ref, ok := items["$ref"].(string); ok {
			return refName(ref)
		}
	}
	return ""
}

func refName(ref string) string {
	const prefix = "#/components/schemas/"
	if strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix)
	}
	return ""
}

func hasProperty(res *Resource, name string) bool {
	for _, p := range res.Properties {
		if p.Name == name {
			return true
		}
	}
	return false
}

// stripExtensions removes x- fields so schemas handed to the structural
// validator stay plain JSON Schema.
func stripExtensions(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if strings.HasPrefix(k, "x-") {
			continue
		}
		out[k] = v
	}
	return out
}

func deepCopy(v map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, val := range v {
		switch typed := val.(type) {
		case map[string]interface{}:
			out[k] = deepCopy(typed)
		case []interface{}:
			cp := make([]interface{}, len(typed))
			for i, item := range typed {
				if m, ok := item.(map[string]interface{}); ok {
					cp[i] = deepCopy(m)
				} else {
					cp[i] = item
				}
			}
			out[k] = cp
		default:
			out[k] = val
		}
	}
	return out
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// nodeToValue converts a yaml.Node tree into plain Go values with string
// map keys.
func nodeToValue(n *yaml.Node) interface{} {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) > 0 {
			return nodeToValue(n.Content[0])
		}
		return nil
	case yaml.MappingNode:
		out := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			out[n.Content[i].Value] = nodeToValue(n.Content[i+1])
		}
		return out
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			out = append(out, nodeToValue(c))
		}
		return out
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return n.Value
		}
		return v
	case yaml.AliasNode:
		return nodeToValue(n.Alias)
	}
	return nil
}

func documentRoot(root *yaml.Node) *yaml.Node {
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		return root.Content[0]
	}
	return root
}

func findMapValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}
