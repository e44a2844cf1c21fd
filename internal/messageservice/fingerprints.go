package messageservice

import (
	"sync"

	"github.com/relaychat/server/internal/validate"
)

// fingerprintRingSize bounds the recent-message ring each room keeps for
// spam/duplicate detection (spec.md §4.4 criterion (c)) — deliberately
// small since it only needs to catch obvious back-to-back repeats, not
// serve as a durable history (that's C5's job).
const fingerprintRingSize = 20

// fingerprintRings holds a bounded per-room ring of recent blake2b-256
// fingerprints, so duplicate detection never has to keep raw message
// text around.
type fingerprintRings struct {
	mu    sync.Mutex
	rooms map[string][]validate.Fingerprint
}

func newFingerprintRings() *fingerprintRings {
	return &fingerprintRings{rooms: make(map[string][]validate.Fingerprint)}
}

// recent returns a snapshot of roomID's current ring.
func (f *fingerprintRings) recent(roomID string) []validate.Fingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	ring := f.rooms[roomID]
	out := make([]validate.Fingerprint, len(ring))
	copy(out, ring)
	return out
}

// push appends fp to roomID's ring, dropping the oldest entry past
// fingerprintRingSize.
func (f *fingerprintRings) push(roomID string, fp validate.Fingerprint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ring := append(f.rooms[roomID], fp)
	if len(ring) > fingerprintRingSize {
		ring = ring[len(ring)-fingerprintRingSize:]
	}
	f.rooms[roomID] = ring
}
