package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// ChunkConfig controls passage size, counted in characters.
type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultChunkConfig returns 500-character passages overlapping by 100.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    500,
		ChunkOverlap: 100,
	}
}

// Validate rejects configurations the splitter cannot honor.
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Chunker splits documents with a recursive character splitter that prefers
// paragraph, then line, then word boundaries.
type Chunker struct {
	cfg      ChunkConfig
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a Chunker with the given configuration.
func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		cfg: cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
	}, nil
}

// Config returns the chunker configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Split divides text into ordered, overlapping passages. Blank text yields none.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

// LoadAndSplit loads the PDF at path and splits each page separately.
// Passages never span pages. Position is left zero; the index builder assigns it.
func (c *Chunker) LoadAndSplit(ctx context.Context, path string) ([]domain.Passage, error) {
	pages, err := LoadPDF(path)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	var passages []domain.Passage
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, err := c.Split(page.Text)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", source, page.Number, err)
		}
		for _, chunk := range chunks {
			passages = append(passages, domain.Passage{
				Text:   chunk,
				Source: source,
				Page:   page.Number,
			})
		}
	}
	return passages, nil
}
