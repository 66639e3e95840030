package search

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/quartzlab/depot/internal/depot/domain"
)

// Compile-time interface check.
var _ Index = (*ElasticIndex)(nil)

const (
	indexName    = "files"
	pipelineName = "file-attachment"

	defaultSearchLimit = 25
)

// ElasticConfig carries the Elasticsearch connection settings.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
}

type ElasticIndex struct {
	es *elasticsearch.Client
}

func NewElasticIndex(cfg ElasticConfig) (*ElasticIndex, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return &ElasticIndex{es: es}, nil
}

func (e *ElasticIndex) Ping(ctx context.Context) error {
	res, err := e.es.Ping(e.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

// EnsureSetup installs the attachment pipeline and creates the files
// index with its mapping. Both calls are idempotent.
func (e *ElasticIndex) EnsureSetup(ctx context.Context) error {
	pipeline := map[string]any{
		"description": "Extract attachment content from uploaded files",
		"processors": []map[string]any{
			{
				"attachment": map[string]any{
					"field":          "data",
					"indexed_chars":  -1,
					"ignore_missing": true,
				},
			},
			{
				"remove": map[string]any{
					"field":          "data",
					"ignore_missing": true,
				},
			},
		},
	}

	if err := e.do(ctx, esapi.IngestPutPipelineRequest{
		PipelineID: pipelineName,
		Body:       encodeBody(pipeline),
	}); err != nil {
		return fmt.Errorf("installing pipeline %q: %w", pipelineName, err)
	}

	exists, err := e.es.Indices.Exists([]string{indexName},
		e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("checking index %q: %w", indexName, err)
	}
	defer exists.Body.Close()

	if exists.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"bucket":      map[string]any{"type": "keyword"},
				"key":         map[string]any{"type": "keyword"},
				"filename":    map[string]any{"type": "text"},
				"ownerId":     map[string]any{"type": "keyword"},
				"ownerName":   map[string]any{"type": "keyword"},
				"contentType": map[string]any{"type": "keyword"},
				"size":        map[string]any{"type": "long"},
				"uploadedAt":  map[string]any{"type": "date"},
			},
		},
	}

	if err := e.do(ctx, esapi.IndicesCreateRequest{
		Index: indexName,
		Body:  encodeBody(mapping),
	}); err != nil {
		return fmt.Errorf("creating index %q: %w", indexName, err)
	}

	return nil
}

func (e *ElasticIndex) IndexObject(ctx context.Context, doc Document) error {
	body := map[string]any{
		"bucket":      doc.Bucket,
		"key":         doc.Key,
		"filename":    doc.Filename,
		"ownerId":     doc.OwnerID,
		"ownerName":   doc.OwnerName,
		"contentType": doc.ContentType,
		"size":        doc.Size,
		"uploadedAt":  doc.UploadedAt,
	}
	if len(doc.Data) > 0 {
		body["data"] = base64.StdEncoding.EncodeToString(doc.Data)
	}

	return e.do(ctx, esapi.IndexRequest{
		Index:      indexName,
		DocumentID: DocID(doc.Bucket, doc.Key),
		Pipeline:   pipelineName,
		Body:       encodeBody(body),
	})
}

func (e *ElasticIndex) DeleteObject(ctx context.Context, bucket, key string) error {
	res, err := e.es.Delete(indexName, DocID(bucket, key),
		e.es.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	// 404 means the document was never indexed; nothing to undo
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("deleting document: %s", res.Status())
	}
	return nil
}

func (e *ElasticIndex) DeleteByBucket(ctx context.Context, bucket string) error {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"bucket": bucket},
		},
	}

	res, err := e.es.DeleteByQuery([]string{indexName}, encodeBody(query),
		e.es.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("deleting bucket documents: %s", res.Status())
	}
	return nil
}

func (e *ElasticIndex) Search(ctx context.Context, q Query) ([]domain.SearchHit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	// Empty query means "everything visible to the caller"
	must := map[string]any{"match_all": map[string]any{}}
	if q.Text != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":     q.Text,
				"fields":    []string{"filename^3", "attachment.title^2", "attachment.content"},
				"fuzziness": "AUTO",
			},
		}
	}

	boolQuery := map[string]any{
		"must": []map[string]any{must},
	}
	if q.OwnerID != "" {
		boolQuery["filter"] = []map[string]any{
			{"term": map[string]any{"ownerId": q.OwnerID}},
		}
	}

	body := map[string]any{
		"size":  limit,
		"query": map[string]any{"bool": boolQuery},
		"highlight": map[string]any{
			"fields": map[string]any{
				"attachment.content": map[string]any{
					"fragment_size":       120,
					"number_of_fragments": 1,
				},
			},
		},
	}

	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(indexName),
		e.es.Search.WithBody(encodeBody(body)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	// A missing index just means nothing has been uploaded yet
	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Bucket    string `json:"bucket"`
					Key       string `json:"key"`
					Filename  string `json:"filename"`
					OwnerID   string `json:"ownerId"`
					OwnerName string `json:"ownerName"`
				} `json:"_source"`
				Highlight map[string][]string `json:"highlight"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, domain.SearchHit{
			Bucket:     h.Source.Bucket,
			Key:        h.Source.Key,
			Filename:   h.Source.Filename,
			OwnerID:    h.Source.OwnerID,
			OwnerName:  h.Source.OwnerName,
			Score:      h.Score,
			Highlights: h.Highlight["attachment.content"],
		})
	}

	return hits, nil
}

// do executes a request and folds error statuses into an error.
func (e *ElasticIndex) do(ctx context.Context, req esapi.Request) error {
	res, err := req.Do(ctx, e.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch: %s", res.Status())
	}
	return nil
}

func encodeBody(v any) *bytes.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}
