package domain

// KnowledgeChunk is a contiguous slice of a persona's knowledge base,
// produced by the chunker in left-to-right document order. Ordinals are
// strictly increasing within one ingestion.
type KnowledgeChunk struct {
	Text    string
	Ordinal int
}

// EmbeddedChunk pairs a chunk with its embedding vector. The vector length
// must equal the collection's declared dimensionality for the lifetime of
// that collection.
type EmbeddedChunk struct {
	Text      string
	Ordinal   int
	Vector    []float32
	PersonaID string
}

// RetrievedChunk is a similarity search hit. Ephemeral, never persisted.
type RetrievedChunk struct {
	Text  string
	Score float32
}
