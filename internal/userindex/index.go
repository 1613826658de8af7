// Package userindex persists each user's index (ordered passages plus the
// vector structure over their embeddings) as one unit on local disk and
// replicates it to a blob store.
package userindex

import (
	"fmt"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

// File names inside a user's index directory and under users/{id}/faiss/.
const (
	IndexFile    = "index.index"
	PassagesFile = "docs.pkl"
	ManifestFile = "manifest.json"
)

// Manifest describes one generation of a user index.
type Manifest struct {
	Generation string    `json:"generation"`
	Passages   int       `json:"passages"`
	Dimension  int       `json:"dimension"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	Replicated bool      `json:"replicated"`
}

// Index pairs the ordered passages with the vectors built from them.
// Vector i is the embedding of Passages[i].
type Index struct {
	Manifest Manifest
	Vectors  *vectorindex.Flat
	Passages []domain.Passage
}

// Validate checks that vectors, passages and manifest agree.
func (ix *Index) Validate() error {
	if ix.Vectors == nil {
		return domain.Wrap(domain.ErrIndexCorrupt, fmt.Errorf("missing vectors"))
	}
	if ix.Vectors.Len() != len(ix.Passages) {
		return domain.Wrap(domain.ErrIndexCorrupt,
			fmt.Errorf("%d vectors but %d passages", ix.Vectors.Len(), len(ix.Passages)))
	}
	if ix.Manifest.Passages != len(ix.Passages) {
		return domain.Wrap(domain.ErrIndexCorrupt,
			fmt.Errorf("manifest lists %d passages, found %d", ix.Manifest.Passages, len(ix.Passages)))
	}
	if ix.Manifest.Dimension != ix.Vectors.Dim() {
		return domain.Wrap(domain.ErrIndexCorrupt,
			fmt.Errorf("manifest dimension %d, vectors have %d", ix.Manifest.Dimension, ix.Vectors.Dim()))
	}
	return nil
}

// Search returns up to k passages nearest to query, nearest first. Results
// that do not map to a stored passage are dropped.
func (ix *Index) Search(query []float32, k int) ([]domain.Hit, error) {
	results, err := ix.Vectors.Search(query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(results))
	for _, r := range results {
		if r.ID < 0 || r.ID >= len(ix.Passages) {
			continue
		}
		hits = append(hits, domain.Hit{Passage: ix.Passages[r.ID], Distance: r.Distance})
	}
	return hits, nil
}
