package kb

import (
	"time"

	"github.com/Aman-CERP/chatmydocs/internal/extract"
	"github.com/Aman-CERP/chatmydocs/internal/store"
)

// KnowledgeBase is an owner-scoped collection of ingested documents.
type KnowledgeBase struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	SanitizedName string `json:"sanitized_name"`

	// SourceDocuments lists uploaded filenames in ingestion order.
	SourceDocuments []string `json:"source_documents"`

	Locator string     `json:"locator"`
	Backend store.Kind `json:"backend"`

	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	CreatedAt      time.Time `json:"created_at"`

	// Handle addresses the vector namespace.
	Handle *store.Handle `json:"-"`
}

// Namespace returns the store namespace of the knowledge base.
func (k *KnowledgeBase) Namespace() store.Namespace {
	return store.Namespace{Owner: k.Owner, Name: k.SanitizedName}
}

// Summary is one row of a knowledge-base listing.
type Summary struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Documents   int       `json:"documents"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// CreateResult is returned by Create and AddDocuments.
type CreateResult struct {
	KB       *KnowledgeBase
	Warnings []extract.Warning
	Chunks   int
}

// metadata is the kb.json blob.
type metadata struct {
	Name      string     `json:"name"`
	Backend   store.Kind `json:"backend"`
	Model     string     `json:"embedding_model"`
	Dimension int        `json:"dimension"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Blob keys relative to "{owner}/{sanitized}/".
const (
	manifestFile = "source_documents.json"
	metadataFile = "kb.json"
	historyFile  = "chat_history.json"
	filesDir     = "files/"
)

func prefix(owner, sanitized string) string {
	return owner + "/" + sanitized + "/"
}
