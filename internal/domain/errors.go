package domain

import "errors"

var (
	// ErrEmbeddingUnavailable signals that the embedding provider exhausted
	// its retries or returned a fatal client error.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrCatalogUnavailable signals that the catalog store is unreachable
	// or a query failed.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrInvalidFilter signals filter values outside the configured bounds.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrNoMatchFound signals an empty search result to direct search callers.
	ErrNoMatchFound = errors.New("no match found")
	// ErrVectorDimMismatch signals a vector of unexpected dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)
