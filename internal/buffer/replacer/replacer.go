// Package replacer implements the pluggable buffer-pool victim-selection
// policies described in the spec: LRU and CLOCK, behind one shared
// interface so the buffer pool can be constructed with either.
package replacer

// FrameID indexes a frame slot in the buffer pool.
type FrameID int

// Replacer chooses a victim frame from the set of currently unpinned
// frames. Pin removes a frame from candidacy (it is in use); Unpin adds it
// back (it is a candidate for eviction).
type Replacer interface {
	// Victim returns and removes one unpinned frame. ok is false if the
	// candidate set is empty.
	Victim() (frame FrameID, ok bool)
	// Pin removes fid from the candidate set.
	Pin(fid FrameID)
	// Unpin adds fid to the candidate set; duplicate Unpins are ignored.
	Unpin(fid FrameID)
	// Size returns the number of candidates.
	Size() int
}
