package keys

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"analytics-service/internal/model"
)

const partitionLayout = "20060102"

// KeyManager derives store keys for events. Row keys are content-derived so
// that a redelivered queue message converges onto the same row instead of
// inserting a duplicate.
type KeyManager struct {
	hasherPool sync.Pool
}

func NewKeyManager() *KeyManager {
	return &KeyManager{
		// Pool of hash states to avoid per-event allocation on the hot path.
		hasherPool: sync.Pool{
			New: func() interface{} {
				return murmur3.New128()
			},
		},
	}
}

// PartitionKey returns the UTC date bucket for the event's client timestamp.
func (km *KeyManager) PartitionKey(ts time.Time) string {
	return ts.UTC().Format(partitionLayout)
}

// PartitionKeyDaysAgo returns the partition key for midnight UTC minus days.
func (km *KeyManager) PartitionKeyDaysAgo(days int) string {
	return time.Now().UTC().AddDate(0, 0, -days).Format(partitionLayout)
}

// RowKey derives a stable row identifier from the event's identity fields.
// Nanosecond client timestamps make accidental collisions between distinct
// events negligible.
func (km *KeyManager) RowKey(evt *model.Event) string {
	h := km.hasherPool.Get().(hash.Hash)
	defer km.hasherPool.Put(h)
	h.Reset()

	h.Write([]byte(evt.EventType))
	h.Write([]byte{0})
	h.Write([]byte(evt.UserID))
	h.Write([]byte{0})
	h.Write([]byte(evt.SessionID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(evt.TimestampUtc.UTC().UnixNano(), 10)))
	if evt.Url != nil {
		h.Write([]byte{0})
		h.Write([]byte(*evt.Url))
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// Assign stamps partition and row keys on the event. Safe to call on a
// redelivered event: the same input yields the same keys.
func (km *KeyManager) Assign(evt *model.Event) {
	evt.PartitionKey = km.PartitionKey(evt.TimestampUtc)
	evt.RowKey = km.RowKey(evt)
}

// HourBucket formats the event's client timestamp as its UTC hour-of-day
// label used by the dashboard histogram.
func HourBucket(ts time.Time) string {
	return fmt.Sprintf("%02d:00", ts.UTC().Hour())
}
