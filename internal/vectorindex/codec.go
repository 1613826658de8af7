package vectorindex

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const (
	formatVersion = 1
	metricL2      = "l2"
)

// Both files carry the generation they were written for so a reader can
// tell vectors and passages of different builds apart.
type flatRecord struct {
	Version    int       `msgpack:"version"`
	Generation string    `msgpack:"generation"`
	Metric     string    `msgpack:"metric"`
	Dim        int       `msgpack:"dim"`
	Count      int       `msgpack:"count"`
	Data       []float32 `msgpack:"data"`
}

type passageRecord struct {
	Text     string `msgpack:"text"`
	Source   string `msgpack:"source,omitempty"`
	Page     int    `msgpack:"page,omitempty"`
	Position int    `msgpack:"position"`
}

type passagesRecord struct {
	Version    int             `msgpack:"version"`
	Generation string          `msgpack:"generation"`
	Passages   []passageRecord `msgpack:"passages"`
}

// Encode writes the index in its on-disk form, stamped with generation.
func (f *Flat) Encode(w io.Writer, generation string) error {
	rec := flatRecord{
		Version:    formatVersion,
		Generation: generation,
		Metric:     metricL2,
		Dim:        f.dim,
		Count:      f.Len(),
		Data:       f.data,
	}
	if err := msgpack.NewEncoder(w).Encode(&rec); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return nil
}

// DecodeFlat reads an index written by Encode and returns it with its
// generation. Malformed input is domain.ErrIndexCorrupt.
func DecodeFlat(r io.Reader) (*Flat, string, error) {
	var rec flatRecord
	if err := msgpack.NewDecoder(r).Decode(&rec); err != nil {
		return nil, "", domain.Wrap(domain.ErrIndexCorrupt, fmt.Errorf("decode index: %w", err))
	}
	if rec.Version != formatVersion || rec.Metric != metricL2 {
		return nil, "", domain.Wrap(domain.ErrIndexCorrupt,
			fmt.Errorf("unsupported index format version=%d metric=%q", rec.Version, rec.Metric))
	}
	if rec.Dim <= 0 || len(rec.Data) != rec.Dim*rec.Count {
		return nil, "", domain.Wrap(domain.ErrIndexCorrupt,
			fmt.Errorf("index holds %d values, expected %d x %d", len(rec.Data), rec.Count, rec.Dim))
	}
	return &Flat{dim: rec.Dim, data: rec.Data}, rec.Generation, nil
}

// EncodePassages writes the ordered passage list, stamped with generation.
func EncodePassages(w io.Writer, generation string, passages []domain.Passage) error {
	rec := passagesRecord{
		Version:    formatVersion,
		Generation: generation,
		Passages:   make([]passageRecord, len(passages)),
	}
	for i, p := range passages {
		rec.Passages[i] = passageRecord(p)
	}
	if err := msgpack.NewEncoder(w).Encode(&rec); err != nil {
		return fmt.Errorf("encode passages: %w", err)
	}
	return nil
}

// DecodePassages reads a passage list written by EncodePassages and returns
// it with its generation.
func DecodePassages(r io.Reader) ([]domain.Passage, string, error) {
	var rec passagesRecord
	if err := msgpack.NewDecoder(r).Decode(&rec); err != nil {
		return nil, "", domain.Wrap(domain.ErrIndexCorrupt, fmt.Errorf("decode passages: %w", err))
	}
	if rec.Version != formatVersion {
		return nil, "", domain.Wrap(domain.ErrIndexCorrupt, fmt.Errorf("unsupported passages format version=%d", rec.Version))
	}
	passages := make([]domain.Passage, len(rec.Passages))
	for i, p := range rec.Passages {
		passages[i] = domain.Passage(p)
	}
	return passages, rec.Generation, nil
}
