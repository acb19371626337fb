// Package search mirrors the archived partition into Elasticsearch so the
// delivery history stays searchable beyond what the synced list can offer.
package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/delivery"
)

// ElasticClient provides integration with Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexDelivery writes one archived delivery into the history index. The
// document id is the record id, so re-indexing the same snapshot is an
// idempotent upsert.
func (c *ElasticClient) IndexDelivery(ctx context.Context, d delivery.Delivery) error {
	doc := map[string]interface{}{
		"id":                 d.ID,
		"supplier":           d.Supplier,
		"expected_date":      d.ExpectedDate,
		"arrival":            d.Arrival,
		"pallets":            d.Pallets,
		"packages":           d.Packages,
		"estimated_pallets":  d.EstimatedPallets,
		"estimated_packages": d.EstimatedPackages,
		"status":             string(d.Status),
		"last_update":        d.LastUpdate,
		"island":             string(d.Island),
		"transport_company":  d.TransportCompany,
		"notes":              d.Notes,
		"tracking":           d.Tracking,
		"observations":       d.Observations,
	}

	docJson, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal delivery document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: d.ID,
		Body:       bytes.NewReader(docJson),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Debug().Str("delivery_id", d.ID).Msg("Delivery indexed")
	return nil
}

// IndexSnapshot indexes a full archived snapshot, logging and skipping the
// documents that fail. The next snapshot retries them anyway.
func (c *ElasticClient) IndexSnapshot(ctx context.Context, deliveries []delivery.Delivery) {
	for _, d := range deliveries {
		if err := c.IndexDelivery(ctx, d); err != nil {
			log.Error().Err(err).Str("delivery_id", d.ID).Msg("Failed to index archived delivery")
		}
	}
}

// SearchHistory runs a free-text match over the history index and returns
// the matching documents.
func (c *ElasticClient) SearchHistory(ctx context.Context, text string, size int) ([]map[string]interface{}, error) {
	if size <= 0 {
		size = 50
	}

	query := map[string]interface{}{
		"size": size,
		"sort": []map[string]interface{}{
			{"last_update": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"supplier^2", "notes", "observations", "tracking", "transport_company"},
			},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}
	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		docs = append(docs, source)
	}

	return docs, nil
}
