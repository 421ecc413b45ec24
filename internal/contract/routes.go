// internal/contract/routes.go
package contract

import "strings"

// routeIndex resolves (method, path) to an operation. Literal routes hit a
// precomputed map; parameterized templates are compiled into segment
// matchers resolved per request.
type routeIndex struct {
	static    map[string]*Operation
	templates []*routeTemplate
}

type routeTemplate struct {
	method   string
	segments []routeSegment
	op       *Operation
}

type routeSegment struct {
	literal string
	param   string
}

func newRouteIndex() *routeIndex {
	return &routeIndex{static: make(map[string]*Operation)}
}

// signature normalizes a path template so that two templates differing only
// in parameter names are recognized as the same route.
func signature(method, path string) string {
	segs := splitPath(path)
	for i, s := range segs {
		if isParam(s) {
			segs[i] = "{}"
		}
	}
	return method + " /" + strings.Join(segs, "/")
}

func isParam(seg string) bool {
	return len(seg) > 1 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// add registers an operation; returns false when an identical template and
// verb is already registered.
func (idx *routeIndex) add(op *Operation) bool {
	sig := signature(op.Method, op.Path)
	if _, exists := idx.static[sig]; exists {
		return false
	}
	for _, tpl := range idx.templates {
		if signature(tpl.method, tpl.op.Path) == sig {
			return false
		}
	}

	segs := splitPath(op.Path)
	parameterized := false
	compiled := make([]routeSegment, 0, len(segs))
	for _, s := range segs {
		if isParam(s) {
			parameterized = true
			compiled = append(compiled, routeSegment{param: s[1 : len(s)-1]})
		} else {
			compiled = append(compiled, routeSegment{literal: s})
		}
	}

	if parameterized {
		idx.templates = append(idx.templates, &routeTemplate{
			method:   op.Method,
			segments: compiled,
			op:       op,
		})
	} else {
		idx.static[sig] = op
	}
	return true
}

func (idx *routeIndex) resolve(method, path string) (*Operation, map[string]string, bool) {
	segs := splitPath(path)

	if op, ok := idx.static[method+" /"+strings.Join(segs, "/")]; ok {
		return op, nil, true
	}

	for _, tpl := range idx.templates {
		if tpl.method != method || len(tpl.segments) != len(segs) {
			continue
		}
		params := make(map[string]string)
		matched := true
		for i, ts := range tpl.segments {
			if ts.param != "" {
				params[ts.param] = segs[i]
			} else if ts.literal != segs[i] {
				matched = false
				break
			}
		}
		if matched {
			return tpl.op, params, true
		}
	}
	return nil, nil, false
}
