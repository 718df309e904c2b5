package service

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// Dedup remembers Idempotency-Key values for a TTL so a retried request is
// answered with the stored receipt instead of being applied twice.
type Dedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]dedupEntry
}

type dedupEntry struct {
	at      time.Time
	receipt *Receipt
}

// DedupKey scopes a client key to the caller, command kind and token, so two
// callers reusing a key never see each other's receipts.
func DedupKey(caller common.Address, kind domain.CommandKind, token common.Address, key string) string {
	return caller.Hex() + "|" + string(kind) + "|" + token.Hex() + "|" + key
}

// NewDedup creates a Dedup with the given retention window.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{ttl: ttl, seen: make(map[string]dedupEntry)}
}

// Lookup returns the receipt stored for key if it is still within the TTL.
func (d *Dedup) Lookup(key string, now time.Time) (*Receipt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.seen[key]
	if !ok || now.Sub(e.at) >= d.ttl {
		return nil, false
	}
	return e.receipt, true
}

// Remember stores the receipt for key.
func (d *Dedup) Remember(key string, r *Receipt, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = dedupEntry{at: now, receipt: r}
}

// Cleanup drops expired keys. The serve loop calls it periodically.
func (d *Dedup) Cleanup(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for k, e := range d.seen {
		if now.Sub(e.at) >= d.ttl {
			delete(d.seen, k)
			n++
		}
	}
	return n
}
