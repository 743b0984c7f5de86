// Package chunk splits extracted documents into fixed-size overlapping
// passages, the unit of embedding and retrieval.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Defaults for the sliding window, in characters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Document is one unit of extracted text with its upload provenance.
type Document struct {
	Text string
	// Source is the original uploaded filename.
	Source string
}

// Metadata travels with a chunk into the vector store.
type Metadata struct {
	Source string `json:"source"`
}

// Chunk is a bounded passage of a Document.
type Chunk struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`

	// Index is the chunk's position within its document.
	Index int `json:"index"`
	// Start is the character offset of Text within the document.
	Start int `json:"start"`
}

// chunkID is SHA256(source + start + text)[:16]. Re-chunking the same
// document yields the same IDs.
func chunkID(source string, start int, text string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(start)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
