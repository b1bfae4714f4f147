// Package store persists memories with their embeddings and serves
// similarity search over them.
package store

import (
	"errors"

	"github.com/memkeep/memkeep/internal/types"
)

// ErrNotFound is returned when a memory ID does not exist.
var ErrNotFound = errors.New("memory not found")

// ErrDuplicateID is returned when adding a memory whose ID already exists.
var ErrDuplicateID = errors.New("memory id already exists")

// SearchResult pairs a memory with its similarity to the query.
type SearchResult struct {
	Memory     *types.Memory `json:"memory"`
	Similarity float64       `json:"similarity"`
}

// Store is the persistence interface the curator and the API server work
// against.
type Store interface {
	// Add inserts a new memory, computing and storing its embedding.
	// Fails with ErrDuplicateID if the ID is taken.
	Add(m *types.Memory) error

	// Get returns one memory by ID, or ErrNotFound.
	Get(id string) (*types.Memory, error)

	// GetAll returns every stored memory. Curation passes scan the full
	// collection, so this is a first-class operation, not an escape hatch.
	GetAll() ([]*types.Memory, error)

	// UpdateMetadata replaces the metadata of an existing memory.
	// Content and embedding are untouched. ErrNotFound if absent.
	UpdateMetadata(id string, md types.Metadata) error

	// Delete removes a memory. Deleting a missing ID is not an error.
	Delete(id string) error

	// Count returns the number of stored memories.
	Count() (int, error)

	// Search returns up to maxResults memories ranked by cosine similarity
	// to the query text, filtered to similarity >= threshold. An empty
	// sourceFilter matches all sources.
	Search(query string, maxResults int, threshold float64, sourceFilter string) ([]SearchResult, error)

	Close() error
}
