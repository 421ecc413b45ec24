// internal/extension/proxy.go
// Package extension executes the behavioral contract annotations: soft
// delete rewriting, proxy/transform calls and change-event construction.
package extension

import (
	"context"
	"strings"

	"contract-runtime/internal/common/errors"
	"contract-runtime/internal/common/httpclient"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/contract"
)

// ProxyExecutor performs the outbound call for proxy operations: URL
// template rendering, request field mapping, the call itself, and response
// field mapping back into the declared response shape. Nothing is persisted
// locally and no events are emitted here.
type ProxyExecutor struct {
	client *httpclient.Client
	logger logger.Logger
}

func NewProxyExecutor(client *httpclient.Client, log logger.Logger) *ProxyExecutor {
	return &ProxyExecutor{client: client, logger: log}
}

// Execute runs the proxy call. Any transport failure or non-2xx upstream
// status surfaces as UPSTREAM_UNAVAILABLE; upstream responses are never
// defaulted or fabricated.
func (p *ProxyExecutor) Execute(ctx context.Context, op *contract.Operation, body map[string]interface{}, pathParams map[string]string) (map[string]interface{}, error) {
	proxy := op.Proxy

	url := renderTemplate(proxy.URL, pathParams)

	var outbound map[string]interface{}
	if body != nil {
		outbound = mapFields(body, proxy.RequestMapping)
	}

	status, decoded, err := p.client.DoJSON(ctx, proxy.Method, url, outbound)
	if err != nil {
		p.logger.Warn("proxy upstream call failed", map[string]interface{}{
			"operation": op.ID,
			"upstream":  url,
			"status":    status,
			"error":     err,
		})
		return nil, errors.NewUpstreamUnavailableError(url, err)
	}

	return mapFields(decoded, proxy.ResponseMapping), nil
}

// renderTemplate substitutes {param} placeholders with bound path
// parameter values.
func renderTemplate(tpl string, params map[string]string) string {
	out := tpl
	for name, value := range params {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// mapFields renames fields per the mapping; unmapped fields pass through
// unchanged. An empty mapping is the identity.
func mapFields(in map[string]interface{}, mapping map[string]string) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if renamed, ok := mapping[k]; ok {
			out[renamed] = v
		} else {
			out[k] = v
		}
	}
	return out
}
