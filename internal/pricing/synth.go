package pricing

import (
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
)

// Segment is a coarse market class used to bound synthetic drift
type Segment string

const (
	SegmentEquity  Segment = "equity"
	SegmentForeign Segment = "foreign"
	SegmentIndex   Segment = "index"
	SegmentCrypto  Segment = "crypto"
)

// maxDrift is the largest synthetic move (fraction of the initial price) per segment
var maxDrift = map[Segment]float64{
	SegmentEquity:  0.08,
	SegmentForeign: 0.10,
	SegmentIndex:   0.04,
	SegmentCrypto:  0.25,
}

// fallbackBasePrice is used when no initial price exists
const fallbackBasePrice = 100.0

// SegmentOf classifies a ticker by its symbol shape
func SegmentOf(ticker string) Segment {
	t := contracts.NormalizeTicker(ticker)
	switch {
	case strings.HasSuffix(t, "-USD") || strings.HasSuffix(t, "-USDT"):
		return SegmentCrypto
	case strings.HasPrefix(t, "^"):
		return SegmentIndex
	case strings.Contains(t, "."):
		return SegmentForeign
	default:
		return SegmentEquity
	}
}

// Synthesize derives a deterministic stand-in price from ticker and date.
// The same inputs always give the same price, bounded by the segment's drift.
func Synthesize(ticker string, date time.Time, initial float64) float64 {
	base := initial
	if base <= 0 {
		base = fallbackBasePrice
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(contracts.NormalizeTicker(ticker) + "|" + contracts.DateKey(date)))
	// map the hash onto [-1, 1]
	unit := float64(h.Sum64()%2_000_001)/1_000_000 - 1

	price := base * (1 + unit*maxDrift[SegmentOf(ticker)])
	return math.Round(price*100) / 100
}
