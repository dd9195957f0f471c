//go:build !cgo

package graph

import "errors"

// OpenLocal is unavailable without CGO; the embedded backend wraps KuzuDB's
// C library.
func OpenLocal(string) (Store, error) {
	return nil, errors.New("graph: embedded store requires a cgo build")
}
