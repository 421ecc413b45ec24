// internal/dispatch/dispatcher.go
// Package dispatch drives a request through the operation pipeline:
// Resolving, Validating, Proxying or Persisting, Emitting, Responding.
// Failure from any stage short-circuits to the problem-response boundary.
package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"contract-runtime/internal/common/errors"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/common/observability"
	"contract-runtime/internal/contract"
	"contract-runtime/internal/events"
	"contract-runtime/internal/extension"
	"contract-runtime/internal/query"
	"contract-runtime/internal/store"
	"contract-runtime/internal/validation"
)

// Dispatcher executes contract operations against the data store, the proxy
// upstreams and the event emitter.
type Dispatcher struct {
	store       store.Store
	engine      *validation.Engine
	translator  *query.Translator
	proxy       *extension.ProxyExecutor
	emitter     *events.Emitter
	topicPrefix string
	logger      logger.Logger
	obs         *observability.Observability
}

func New(
	s store.Store,
	engine *validation.Engine,
	translator *query.Translator,
	proxy *extension.ProxyExecutor,
	emitter *events.Emitter,
	topicPrefix string,
	log logger.Logger,
	obs *observability.Observability,
) *Dispatcher {
	return &Dispatcher{
		store:       s,
		engine:      engine,
		translator:  translator,
		proxy:       proxy,
		emitter:     emitter,
		topicPrefix: topicPrefix,
		logger:      log,
		obs:         obs,
	}
}

// Dispatch resolves and executes one request against a contract snapshot.
// The snapshot is fixed for the whole request; a concurrent reload never
// changes the rules mid-flight.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request, c *contract.Contract) {
	start := time.Now()

	op, pathParams, ok := c.Resolve(r.Method, r.URL.Path)
	if !ok {
		d.respondError(w, r, "unresolved", errors.NewOperationNotFoundError(r.Method, r.URL.Path))
		return
	}

	status, payload, err := d.execute(r, op, pathParams)
	if err != nil {
		d.respondError(w, r, op.ID, err)
		return
	}

	d.obs.RecordRequest(r.Context(), op.ID, "success")
	d.obs.RecordRequestDuration(r.Context(), op.ID, time.Since(start))
	writeJSON(w, status, payload)
}

func (d *Dispatcher) execute(r *http.Request, op *contract.Operation, pathParams map[string]string) (int, interface{}, error) {
	ctx := r.Context()
	params := queryParams(r)
	principal := PrincipalFromHeaders(r)

	var body map[string]interface{}
	if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return 0, nil, errors.NewMalformedRequestError(fmt.Errorf("decode request body: %w", err))
		}
	}

	collection := ""
	if op.Resource != nil {
		collection = op.Resource.Collection
	}

	// Nothing downstream runs until validation completes.
	if !op.IsRead() {
		err := d.engine.Validate(ctx, op, validation.Request{
			Body:       body,
			Params:     params,
			PathParams: pathParams,
			Collection: collection,
			Principal:  principal,
		})
		if err != nil {
			return 0, nil, err
		}
	}

	if op.Proxy != nil {
		return d.executeProxy(r, op, body, pathParams)
	}

	switch op.Kind {
	case contract.KindCreate:
		rec, err := d.store.Create(ctx, collection, store.Record(body))
		if err != nil {
			return 0, nil, mapStoreError(err, collection, "")
		}
		d.emit(r, op, rec, false)
		return http.StatusCreated, d.shape(op, rec), nil

	case contract.KindGet:
		key := keyParam(op, pathParams)
		rec, err := d.store.Read(ctx, collection, key)
		if err != nil {
			return 0, nil, mapStoreError(err, collection, key)
		}
		return http.StatusOK, d.shape(op, applyProjection(rec, params)), nil

	case contract.KindList:
		q := d.translator.BuildQuery(op, params, principal)
		page, err := d.store.Query(ctx, collection, q)
		if err != nil {
			return 0, nil, mapStoreError(err, collection, "")
		}
		items := make([]map[string]interface{}, 0, len(page.Records))
		for _, rec := range page.Records {
			items = append(items, d.shape(op, rec))
		}
		result := map[string]interface{}{"items": items}
		if op.Resource != nil && op.Resource.Pagination.Strategy == contract.PaginationCursor && page.NextCursor != "" {
			result["nextCursor"] = page.NextCursor
		}
		return http.StatusOK, result, nil

	case contract.KindUpdate:
		key := keyParam(op, pathParams)
		rec, err := d.store.Update(ctx, collection, key, store.Record(body))
		if err != nil {
			return 0, nil, mapStoreError(err, collection, key)
		}
		d.emit(r, op, rec, false)
		return http.StatusOK, d.shape(op, rec), nil

	case contract.KindDelete:
		key := keyParam(op, pathParams)
		if op.EffectiveSoftDelete() != nil {
			rec, err := extension.SoftDelete(ctx, d.store, op, collection, key)
			if err != nil {
				return 0, nil, mapStoreError(err, collection, key)
			}
			d.emit(r, op, rec, true)
			return http.StatusNoContent, nil, nil
		}
		rec, err := d.store.Read(ctx, collection, key)
		if err != nil {
			return 0, nil, mapStoreError(err, collection, key)
		}
		if err := d.store.Delete(ctx, collection, key); err != nil {
			return 0, nil, mapStoreError(err, collection, key)
		}
		d.emit(r, op, rec, false)
		return http.StatusNoContent, nil, nil
	}

	return 0, nil, errors.NewInternalError(fmt.Errorf("unhandled operation kind %q", op.Kind))
}

// executeProxy runs the upstream call. Proxy operations persist nothing and
// emit only when the contract explicitly declares an event.
func (d *Dispatcher) executeProxy(r *http.Request, op *contract.Operation, body map[string]interface{}, pathParams map[string]string) (int, interface{}, error) {
	mapped, err := d.proxy.Execute(r.Context(), op, body, pathParams)
	if err != nil {
		return 0, nil, err
	}
	if op.Event != nil {
		event := extension.BuildChangeEvent(op, store.Record(mapped), false, d.topicPrefix)
		d.emitter.Emit(r.Context(), event)
	}
	return http.StatusOK, d.shape(op, mapped), nil
}

// emit publishes the change event for a committed write. Emission happens
// before responding, but a degraded publication never fails the request.
func (d *Dispatcher) emit(r *http.Request, op *contract.Operation, rec store.Record, softDeleted bool) {
	event := extension.BuildChangeEvent(op, rec, softDeleted, d.topicPrefix)
	d.emitter.Emit(r.Context(), event)
}

// shape strips fields the declared response schema does not carry, so
// internal record fields never leak.
func (d *Dispatcher) shape(op *contract.Operation, rec map[string]interface{}) map[string]interface{} {
	schema := op.ResponseSchema
	if schema == nil {
		return rec
	}
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		// Array-shaped response schemas declare items.properties.
		items, _ := schema["items"].(map[string]interface{})
		if props, ok = items["properties"].(map[string]interface{}); !ok {
			return rec
		}
	}
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		if _, declared := props[k]; declared {
			out[k] = v
		}
	}
	return out
}

func (d *Dispatcher) respondError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	rtErr := errors.Normalize(err)

	fields := map[string]interface{}{
		"operation": operation,
		"code":      string(rtErr.Code),
		"method":    r.Method,
		"path":      r.URL.Path,
	}
	if rtErr.HTTPStatus() >= http.StatusInternalServerError {
		d.logger.Error(rtErr.Message, fields)
	} else {
		d.logger.Debug(rtErr.Message, fields)
	}

	d.obs.RecordRequest(r.Context(), operation, string(rtErr.Code))
	writeJSON(w, rtErr.HTTPStatus(), errors.ToProblem(rtErr))
}

func mapStoreError(err error, collection, key string) error {
	switch err {
	case store.ErrNotFound:
		return errors.NewRecordNotFoundError(collection, key)
	case store.ErrConflict:
		return errors.NewPersistenceConflictError(
			fmt.Sprintf("record already exists in %s", collection))
	}
	if _, ok := err.(*errors.RuntimeError); ok {
		return err
	}
	return errors.NewPersistenceFailedError(err)
}

// keyParam returns the value bound to the last path parameter, the record
// key by convention.
func keyParam(op *contract.Operation, pathParams map[string]string) string {
	segs := contract.PathParamNames(op.Path)
	if len(segs) == 0 {
		return ""
	}
	return pathParams[segs[len(segs)-1]]
}

func queryParams(r *http.Request) map[string]string {
	values := r.URL.Query()
	params := make(map[string]string, len(values))
	for name := range values {
		params[name] = values.Get(name)
	}
	return params
}

// applyProjection honors fields= on read-by-key the way listings do.
func applyProjection(rec store.Record, params map[string]string) store.Record {
	fields := params["fields"]
	if fields == "" {
		return rec
	}
	var projection []string
	for _, f := range strings.Split(fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			projection = append(projection, f)
		}
	}
	return store.Project(rec, projection)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
