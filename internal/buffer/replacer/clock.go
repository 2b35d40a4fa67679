package replacer

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// clockEntry carries the single reference bit CLOCK sweeps; the candidate's
// position in the ring comes from simplelru's own insertion-order bookkeeping,
// not from this struct.
type clockEntry struct {
	ref bool
}

// CLOCK is a circular-candidate replacer. Candidates live in a
// golang-lru/v2/simplelru.LRU keyed by frame id, used here purely for its
// Keys() insertion-order slice rather than its own recency-based eviction —
// every lookup goes through Peek, never Get, so the library never reorders
// entries out from under the ring the hand sweeps. Unpin appends a new
// candidate with ref=1; Victim walks Keys() order from the hand, clearing
// ref=1 entries until it finds one with ref=0 to evict.
type CLOCK struct {
	cache   *lru.LRU[FrameID, *clockEntry]
	hand    FrameID
	hasHand bool
}

// NewCLOCK creates an empty CLOCK replacer with room for up to capacity frames.
func NewCLOCK(capacity int) *CLOCK {
	cache, _ := lru.NewLRU[FrameID, *clockEntry](capacity, nil)
	return &CLOCK{cache: cache}
}

func indexOfFrame(keys []FrameID, target FrameID) int {
	for i, k := range keys {
		if k == target {
			return i
		}
	}
	return -1
}

func (c *CLOCK) Unpin(fid FrameID) {
	if _, ok := c.cache.Peek(fid); ok {
		return // duplicate Unpin is a no-op
	}
	c.cache.Add(fid, &clockEntry{ref: true})
	if !c.hasHand {
		c.hand = fid
		c.hasHand = true
	}
}

func (c *CLOCK) Pin(fid FrameID) {
	if _, ok := c.cache.Peek(fid); !ok {
		return
	}
	if c.hasHand && c.hand == fid {
		c.advanceHandPast(fid)
	}
	c.cache.Remove(fid)
	if c.cache.Len() == 0 {
		c.hasHand = false
	}
}

// advanceHandPast moves the hand to the candidate following fid in Keys()
// order, wrapping to the front, for when fid (the hand's current position)
// is about to be removed.
func (c *CLOCK) advanceHandPast(fid FrameID) {
	keys := c.cache.Keys()
	idx := indexOfFrame(keys, fid)
	if idx == -1 || len(keys) == 1 {
		c.hasHand = false
		return
	}
	c.hand = keys[(idx+1)%len(keys)]
}

func (c *CLOCK) Victim() (FrameID, bool) {
	if c.cache.Len() == 0 {
		return 0, false
	}
	for {
		keys := c.cache.Keys()
		idx := indexOfFrame(keys, c.hand)
		if idx == -1 {
			idx = 0
			c.hand = keys[0]
		}

		entry, _ := c.cache.Peek(c.hand)
		if entry.ref {
			entry.ref = false
			c.hand = keys[(idx+1)%len(keys)]
			continue
		}

		victim := c.hand
		if len(keys) == 1 {
			c.cache.Remove(victim)
			c.hasHand = false
			return victim, true
		}
		c.hand = keys[(idx+1)%len(keys)]
		c.cache.Remove(victim)
		return victim, true
	}
}

func (c *CLOCK) Size() int {
	return c.cache.Len()
}
