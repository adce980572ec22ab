// Package ingest consumes document events from Kafka into the feature
// store and publishes corpus-update notifications when the corpus grows.
package ingest

import "time"

// DocumentEvent is one document to ingest. Features maps a feature type to
// the term names of that type occurring in the document.
type DocumentEvent struct {
	DocID    uint32              `json:"doc_id"`
	Date     uint32              `json:"date"`
	Features map[string][]string `json:"features"`
}

// CorpusUpdateEvent announces that documents were added, so cached query
// results are stale.
type CorpusUpdateEvent struct {
	Documents int       `json:"documents"`
	Features  int       `json:"features"`
	UpdatedAt time.Time `json:"updated_at"`
}
