// Package diskio maps logical page ids onto physical offsets in a single
// database file and allocates/frees data pages through per-extent bitmap
// pages, mirroring the disk manager and bitmap page components of the spec.
package diskio

import "fmt"

// PageSize is the fixed size of every page, on disk and in the buffer pool.
const PageSize = 4096

// PageID identifies a logical page. Page 0 is reserved for catalog metadata;
// InvalidPageID marks "no page".
type PageID int32

const InvalidPageID PageID = -1

func (p PageID) String() string {
	if p == InvalidPageID {
		return "invalid"
	}
	return fmt.Sprintf("%d", int32(p))
}
