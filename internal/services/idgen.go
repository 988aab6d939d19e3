package services

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// TxIDPrefix namespaces transaction identifiers
const TxIDPrefix = "TX-"

// IDGenerator issues "TX-" ids from a base-36 millisecond clock.
// Ids are strictly increasing within one process even when the clock
// stalls or steps back.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms

	return TxIDPrefix + strings.ToUpper(strconv.FormatInt(ms, 36))
}

// ParseTxIDTime recovers the issue time encoded in a transaction id
func ParseTxIDTime(txID string) (time.Time, bool) {
	if !strings.HasPrefix(txID, TxIDPrefix) {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(strings.ToLower(strings.TrimPrefix(txID, TxIDPrefix)), 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
