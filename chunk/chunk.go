// Package chunk provides the chunk model and the persistent chunk store.
//
// The store holds only raw text and source metadata — never embedding
// vectors. Vectors are recomputed on demand at query time, which is what
// keeps a leanvec index an order of magnitude smaller than a conventional
// vector database.
package chunk

// SourceRef identifies where a chunk came from.
type SourceRef struct {
	// Document is the identifier of the source document.
	Document string `json:"document"`

	// Start and End are byte offsets of the chunk within the document.
	Start int `json:"start"`
	End   int `json:"end"`
}

// Chunk is a unit of indexed text with stable identity.
// Chunks are immutable once written to a store.
type Chunk struct {
	// ID is the caller-supplied stable identifier, unique within an index.
	ID uint64 `json:"id"`

	// Text is the raw chunk content.
	Text string `json:"-"`

	// Source references the originating document and offset range.
	Source SourceRef `json:"source"`

	// TokenCount is the token count reported by the ingestion pipeline.
	TokenCount int `json:"token_count"`
}
