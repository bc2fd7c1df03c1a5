package bleveindex

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/khanglvm/osm-tag-search/internal/index"
)

const (
	fieldName   = "name"
	fieldSource = "source"

	internalSchema     = "schema"
	internalCreated    = "created"
	internalGeneration = "generation"
)

// buildIndexMapping creates the Bleve index mapping. Only the name is
// analysed; the full document travels in a stored, unindexed source field.
func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldName, nameFieldMapping)

	sourceFieldMapping := bleve.NewTextFieldMapping()
	sourceFieldMapping.Index = false
	sourceFieldMapping.IncludeInAll = false
	sourceFieldMapping.IncludeTermVectors = false
	sourceFieldMapping.DocValues = false
	docMapping.AddFieldMappingsAt(fieldSource, sourceFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// toBleve converts a document to the map indexed by Bleve.
func toBleve(doc index.Document) (map[string]interface{}, error) {
	source, err := encodeSource(doc)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		fieldName:   doc.Name,
		fieldSource: source,
	}, nil
}

// encodeSource serialises doc without HTML escaping so mapping tokens come
// back byte for byte.
func encodeSource(doc index.Document) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func decodeSource(id string, fields map[string]interface{}) (index.Document, error) {
	raw, ok := fields[fieldSource].(string)
	if !ok {
		return index.Document{}, fmt.Errorf("document %s has no stored source", id)
	}
	var doc index.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return index.Document{}, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = id
	return doc, nil
}
