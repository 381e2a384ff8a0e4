package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const keySeparator = "@"

// StockKey identifies one projection row. An empty Location is the implicit default location.
type StockKey struct {
	ProductID string
	Location  string
}

func (k StockKey) String() string {
	if k.Location == "" {
		return k.ProductID
	}
	return k.ProductID + keySeparator + k.Location
}

// ParseStockKey is the inverse of StockKey.String.
func ParseStockKey(s string) StockKey {
	product, location, _ := strings.Cut(s, keySeparator)
	return StockKey{ProductID: product, Location: location}
}

// StockLevel is the aggregated quantity on hand for a key.
type StockLevel struct {
	Key            StockKey
	Quantity       int64
	LastMovementID snowflake.ID // zero when nothing applied yet
	LastSequence   int64
	Version        int64 // optimistic locking
	UpdatedAt      time.Time
}

// Apply folds a movement into the level. The caller guarantees sequence order.
func (l StockLevel) Apply(m StockMovement) StockLevel {
	l.Quantity += m.Delta
	l.LastMovementID = m.ID
	l.LastSequence = m.Sequence
	l.Version++
	return l
}

// AddQuantity returns a+b, or a ValidationError when the sum does not fit in int64.
func AddQuantity(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("%d %+d overflows the stock level", a, b)}
	}
	return a + b, nil
}
