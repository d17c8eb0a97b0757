// Package blob abstracts the external object store that holds document
// content. The lifecycle engine only ever sees stable references; bytes live
// behind this boundary.
package blob

import "context"

// Object is the stable reference returned by the store: a dereferenceable URL
// for clients plus an opaque id used for later deletion.
type Object struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Store uploads and deletes binary document content.
type Store interface {
	Put(ctx context.Context, data []byte, contentType, name string) (Object, error)
	Delete(ctx context.Context, id string) error
}
