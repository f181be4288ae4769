package buffer

import (
	"math"
	"sync"

	"github.com/brambledb/bramble/util"
)

// lrukRecord tracks one frame's bounded access history: up to k
// timestamps, oldest first, plus whether the frame may currently be
// evicted.
type lrukRecord struct {
	history   []int64
	evictable bool
}

// LRUKReplacer selects an evictable frame by backward K-distance: the
// time since a frame's Kth most-recent access, with frames that have
// fewer than K recorded accesses always ranked above (more evictable
// than) frames that have accumulated K or more.
type LRUKReplacer struct {
	mu sync.Mutex

	k        int
	capacity int
	clock    int64

	records        map[int]*lrukRecord
	evictableCount int

	log util.Logger
}

// NewLRUKReplacer builds a replacer whose frames each remember at most k
// accesses. capacity only presizes the record map: RecordAccess admits
// any number of frame ids and reports no error past capacity.
func NewLRUKReplacer(capacity, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:        k,
		capacity: capacity,
		records:  make(map[int]*lrukRecord, capacity),
		log:      util.NopLogger(),
	}
}

// RecordAccess pushes the current timestamp onto frameID's history,
// trimming to the most recent k entries. An unknown frame-id is
// implicitly admitted as evictable.
func (r *LRUKReplacer) RecordAccess(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[frameID]
	if !ok {
		rec = &lrukRecord{evictable: true}
		r.records[frameID] = rec
		r.evictableCount++
	}

	r.clock++
	rec.history = append(rec.history, r.clock)
	if len(rec.history) > r.k {
		rec.history = rec.history[1:]
	}
}

// SetEvictable toggles a frame's eligibility, adjusting the evictable
// count. A no-op for frames the replacer doesn't know about.
func (r *LRUKReplacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[frameID]
	if !ok {
		return
	}

	if evictable && !rec.evictable {
		r.evictableCount++
	} else if !evictable && rec.evictable {
		r.evictableCount--
	}
	rec.evictable = evictable
}

// Remove forgets a frame entirely. Removing an unknown frame is a silent
// no-op; removing a known, non-evictable frame is a programmer error.
func (r *LRUKReplacer) Remove(frameID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[frameID]
	if !ok {
		return nil
	}
	if !rec.evictable {
		return util.NewAssertionError("replacer: removing a non-evictable frame")
	}

	delete(r.records, frameID)
	r.evictableCount--
	return nil
}

// Evict picks an evictable frame to reclaim and removes it from the
// replacer atomically with the decision. The victim is the evictable
// frame with the greatest backward K-distance; frames with fewer than k
// recorded accesses (infinite distance) are always preferred over
// frames with a finite distance, with ties broken by earliest relevant
// timestamp.
func (r *LRUKReplacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	victim := -1
	victimIsInf := false
	var victimTiebreak int64 = math.MaxInt64
	var victimDist int64 = -1

	for frameID, rec := range r.records {
		if !rec.evictable {
			continue
		}

		isInf := len(rec.history) < r.k
		tiebreak := rec.history[0]

		switch {
		case victim == -1:
			victim, victimIsInf, victimTiebreak = frameID, isInf, tiebreak
			if !isInf {
				victimDist = r.clock - tiebreak
			}
		case isInf && !victimIsInf:
			victim, victimIsInf, victimTiebreak = frameID, true, tiebreak
			victimDist = -1
		case isInf == victimIsInf && isInf:
			if tiebreak < victimTiebreak {
				victim, victimTiebreak = frameID, tiebreak
			}
		case isInf == victimIsInf && !isInf:
			dist := r.clock - tiebreak
			if dist > victimDist || (dist == victimDist && tiebreak < victimTiebreak) {
				victim, victimTiebreak, victimDist = frameID, tiebreak, dist
			}
		}
	}

	if victim == -1 {
		return -1, false
	}

	delete(r.records, victim)
	r.evictableCount--
	return victim, true
}

// Size reports the number of frames currently marked evictable.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableCount
}
