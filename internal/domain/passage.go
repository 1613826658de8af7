package domain

// Passage is a normalized span of document text used as the retrieval unit.
// Position is the insertion order across the whole upload batch.
type Passage struct {
	Text     string
	Source   string
	Page     int
	Position int
}

// Hit is a retrieved passage with its squared L2 distance to the query.
type Hit struct {
	Passage
	Distance float32
}

// QueryResult is the answer produced for one question. It is never persisted.
type QueryResult struct {
	Answer  string
	Sources []Hit
}
