// Package store holds the document-store accessors the gateway consumes.
// The REST installer owns the collections; the gateway only reads them,
// except for the seed tool.
package store

import "errors"

// ErrNotFound is returned when a looked-up document does not exist.
var ErrNotFound = errors.New("document not found")
