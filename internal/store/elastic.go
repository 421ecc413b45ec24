// internal/store/elastic.go
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"contract-runtime/internal/common/logger"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

// Elastic persists each collection in its own index. Writes refresh
// immediately so a create is visible to the next list query, matching the
// read-your-writes behavior of the other store backends.
type Elastic struct {
	client *elasticsearch.Client
	prefix string
	logger logger.Logger
}

func NewElastic(client *elasticsearch.Client, indexPrefix string, log logger.Logger) *Elastic {
	if indexPrefix == "" {
		indexPrefix = "records"
	}
	return &Elastic{
		client: client,
		prefix: indexPrefix,
		logger: log.WithFields(map[string]interface{}{"store": "elasticsearch"}),
	}
}

func (e *Elastic) indexName(collection string) string {
	return fmt.Sprintf("%s-%s", e.prefix, strings.ToLower(collection))
}

func (e *Elastic) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	stored := rec.Clone()
	key := stored.Key()
	if key == "" {
		key = uuid.New().String()
		stored[KeyField] = key
	}

	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	req := esapi.CreateRequest{
		Index:      e.indexName(collection),
		DocumentID: key,
		Body:       bytes.NewReader(doc),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("index record: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 409 {
		return nil, ErrConflict
	}
	if res.IsError() {
		return nil, fmt.Errorf("index record: %s", res.Status())
	}
	return stored, nil
}

func (e *Elastic) Read(ctx context.Context, collection, key string) (Record, error) {
	req := esapi.GetRequest{Index: e.indexName(collection), DocumentID: key}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("get record: %s", res.Status())
	}

	var envelope struct {
		Source Record `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return envelope.Source, nil
}

func (e *Elastic) Update(ctx context.Context, collection, key string, partial Record) (Record, error) {
	patch := partial.Clone()
	delete(patch, KeyField)

	body, err := json.Marshal(map[string]interface{}{"doc": patch})
	if err != nil {
		return nil, fmt.Errorf("marshal partial: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:      e.indexName(collection),
		DocumentID: key,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("update record: %s", res.Status())
	}
	return e.Read(ctx, collection, key)
}

func (e *Elastic) Delete(ctx context.Context, collection, key string) error {
	req := esapi.DeleteRequest{
		Index:      e.indexName(collection),
		DocumentID: key,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return ErrNotFound
	}
	if res.IsError() {
		return fmt.Errorf("delete record: %s", res.Status())
	}
	return nil
}

func (e *Elastic) Query(ctx context.Context, collection string, q Query) (Page, error) {
	body := buildSearchBody(q)
	data, err := json.Marshal(body)
	if err != nil {
		return Page{}, fmt.Errorf("marshal search body: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{e.indexName(collection)},
		Body:  bytes.NewReader(data),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return Page{}, fmt.Errorf("search records: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		// Index not created yet means no records were ever written.
		e.logger.Debug("search on missing index, returning empty page", map[string]interface{}{
			"collection": collection,
		})
		io.Copy(io.Discard, res.Body)
		return Page{}, nil
	}
	if res.IsError() {
		return Page{}, fmt.Errorf("search records: %s", res.Status())
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				Source Record `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return Page{}, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]Record, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		records = append(records, hit.Source)
	}

	nextCursor := ""
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
		nextCursor = records[len(records)-1].Key()
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, Project(rec, q.Projection))
	}
	return Page{Records: out, NextCursor: nextCursor}, nil
}

// buildSearchBody translates the store query into an ES bool filter.
func buildSearchBody(q Query) map[string]interface{} {
	var filter []map[string]interface{}
	var mustNot []map[string]interface{}

	for _, pred := range q.Predicates {
		switch pred.Op {
		case OpEq:
			filter = append(filter, map[string]interface{}{
				"term": map[string]interface{}{pred.Field + ".keyword": pred.Value},
			})
		case OpNe:
			mustNot = append(mustNot, map[string]interface{}{
				"term": map[string]interface{}{pred.Field + ".keyword": pred.Value},
			})
		case OpGte:
			filter = append(filter, map[string]interface{}{
				"range": map[string]interface{}{pred.Field: map[string]interface{}{"gte": pred.Value}},
			})
		case OpLte:
			filter = append(filter, map[string]interface{}{
				"range": map[string]interface{}{pred.Field: map[string]interface{}{"lte": pred.Value}},
			})
		}
	}

	boolQuery := map[string]interface{}{}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}

	body := map[string]interface{}{
		"sort": []map[string]interface{}{
			{KeyField + ".keyword": map[string]interface{}{"order": "asc"}},
		},
	}
	if len(boolQuery) > 0 {
		body["query"] = map[string]interface{}{"bool": boolQuery}
	} else {
		body["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	if q.Limit > 0 {
		body["size"] = q.Limit + 1
	}
	if q.Cursor != "" {
		body["search_after"] = []interface{}{q.Cursor}
	} else if q.Offset > 0 {
		body["from"] = q.Offset
	}
	return body
}
