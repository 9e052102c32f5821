package history

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// SearchResult is one history hit.
type SearchResult struct {
	ID    string
	Score float64
}

// SearchIndex provides keyword search over history titles, summaries and
// LaTeX bodies.
type SearchIndex struct {
	index bleve.Index
	path  string
}

// NewSearchIndex creates or opens a search index next to the database.
// A corrupted index is deleted and rebuilt rather than failing startup.
func NewSearchIndex(dbPath string) (*SearchIndex, error) {
	indexPath := dbPath + ".bleve"

	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else if err != nil {
		log.Printf("⚠️ search index appears corrupted (error: %v), recreating...", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(indexPath); err != nil {
			log.Printf("⚠️ failed to remove corrupted index: %v", err)
		}
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate search index: %w", err)
		}
	}

	return &SearchIndex{index: index, path: indexPath}, nil
}

// NewMemSearchIndex creates an in-memory index, used in tests.
func NewMemSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory search index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.Index = true
	docMapping.AddFieldMappingsAt("id", idField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = false
	titleField.Index = true
	docMapping.AddFieldMappingsAt("title", titleField)

	summaryField := bleve.NewTextFieldMapping()
	summaryField.Analyzer = standard.Name
	summaryField.Store = false
	summaryField.Index = true
	docMapping.AddFieldMappingsAt("summary", summaryField)

	latexField := bleve.NewTextFieldMapping()
	latexField.Analyzer = standard.Name
	latexField.Store = false
	latexField.Index = true
	docMapping.AddFieldMappingsAt("latex", latexField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Index adds or updates a record in the search index.
func (s *SearchIndex) Index(rec Record) error {
	doc := map[string]interface{}{
		"id":      rec.ID,
		"title":   rec.Title,
		"summary": rec.Analysis.Summary,
		"latex":   rec.Latex,
	}
	return s.index.Index(rec.ID, doc)
}

// Remove deletes a record from the search index.
func (s *SearchIndex) Remove(id string) error {
	return s.index.Delete(id)
}

// Search returns up to k matching record IDs, best first.
func (s *SearchIndex) Search(query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = 20
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, k, 0, false)

	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, SearchResult{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// RebuildFrom reindexes every record in a batch, replacing stale entries.
func (s *SearchIndex) RebuildFrom(records []Record) error {
	batch := s.index.NewBatch()
	for _, rec := range records {
		doc := map[string]interface{}{
			"id":      rec.ID,
			"title":   rec.Title,
			"summary": rec.Analysis.Summary,
			"latex":   rec.Latex,
		}
		if err := batch.Index(rec.ID, doc); err != nil {
			return fmt.Errorf("failed to batch record %s: %w", rec.ID, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply search batch: %w", err)
	}
	return nil
}

// Close closes the underlying index.
func (s *SearchIndex) Close() error {
	return s.index.Close()
}
