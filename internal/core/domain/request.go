package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxTransactionIDLength = 128

const (
	// MaxLineQuantity bounds the absolute quantity of one line. Together with MaxLines it keeps
	// every per-key net delta far inside int64.
	MaxLineQuantity int64 = 1_000_000_000_000
	MaxLines              = 1000

	// AmountScale is the number of decimal places the ledger stores for Amount.
	AmountScale int32 = 4
)

// maxAmount is the exclusive upper bound of a NUMERIC(20,4) amount column.
var maxAmount = decimal.New(1, 16)

// Request is an authenticated operation handed to the coordinator. TransactionID doubles as
// the idempotency key.
type Request struct {
	TransactionID string
	Kind          TransactionKind
	Lines         []Line
	Amount        decimal.Decimal
	Currency      string
	Reference     string
	OccurredAt    time.Time
}

// Line is one product quantity. For transfers the destination defaults to the source product.
type Line struct {
	ProductID   string
	Location    string
	Quantity    int64
	ToProductID string
	ToLocation  string
}

func (l Line) Source() StockKey {
	return StockKey{ProductID: l.ProductID, Location: l.Location}
}

func (l Line) Destination() StockKey {
	product := l.ToProductID
	if product == "" {
		product = l.ProductID
	}
	return StockKey{ProductID: product, Location: l.ToLocation}
}

// Validate checks request shape only. Product existence is checked against the catalog.
func (r Request) Validate() error {
	id := strings.TrimSpace(r.TransactionID)
	if id == "" {
		return &ValidationError{Field: "transaction_id", Reason: "required"}
	}
	if len(id) > maxTransactionIDLength {
		return &ValidationError{Field: "transaction_id", Reason: "too long"}
	}
	if !r.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported kind %q", r.Kind)}
	}
	if len(r.Lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "at least one line required"}
	}
	if len(r.Lines) > MaxLines {
		return &ValidationError{Field: "lines", Reason: fmt.Sprintf("at most %d lines allowed", MaxLines)}
	}
	if r.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if r.Amount.GreaterThanOrEqual(maxAmount) {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be below %s", maxAmount)}
	}
	if !r.Amount.Equal(r.Amount.Truncate(AmountScale)) {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("at most %d decimal places allowed", AmountScale)}
	}
	if !r.Kind.Monetary() && !r.Amount.IsZero() {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("not allowed for %s", r.Kind)}
	}

	for i, line := range r.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if err := validateKeyPart(field+".product_id", line.ProductID, true); err != nil {
			return err
		}
		if err := validateKeyPart(field+".location", line.Location, false); err != nil {
			return err
		}

		switch r.Kind {
		case TransactionKindAdjustment:
			if line.Quantity == 0 {
				return &ValidationError{Field: field + ".quantity", Reason: "must not be zero"}
			}
		default:
			if line.Quantity <= 0 {
				return &ValidationError{Field: field + ".quantity", Reason: "must be positive"}
			}
		}
		if line.Quantity > MaxLineQuantity || line.Quantity < -MaxLineQuantity {
			return &ValidationError{Field: field + ".quantity", Reason: fmt.Sprintf("magnitude exceeds %d", MaxLineQuantity)}
		}

		if r.Kind == TransactionKindTransfer {
			if err := validateKeyPart(field+".to_product_id", line.ToProductID, false); err != nil {
				return err
			}
			if err := validateKeyPart(field+".to_location", line.ToLocation, false); err != nil {
				return err
			}
			if line.Source() == line.Destination() {
				return &ValidationError{Field: field, Reason: "transfer source and destination are the same"}
			}
		} else if line.ToProductID != "" || line.ToLocation != "" {
			return &ValidationError{Field: field, Reason: "destination only allowed for transfers"}
		}
	}
	return nil
}

func validateKeyPart(field, value string, required bool) error {
	if value == "" {
		if required {
			return &ValidationError{Field: field, Reason: "required"}
		}
		return nil
	}
	if strings.TrimSpace(value) != value {
		return &ValidationError{Field: field, Reason: "must not have surrounding whitespace"}
	}
	if strings.Contains(value, keySeparator) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must not contain %q", keySeparator)}
	}
	return nil
}

// Movements expands the request into unsequenced movements, in line order.
func (r Request) Movements() []StockMovement {
	out := make([]StockMovement, 0, len(r.Lines)*2)
	add := func(key StockKey, delta int64, kind MovementKind) {
		out = append(out, StockMovement{
			TransactionID: r.TransactionID,
			ProductID:     key.ProductID,
			Location:      key.Location,
			Delta:         delta,
			Kind:          kind,
			Position:      len(out),
			OccurredAt:    r.OccurredAt,
		})
	}

	for _, line := range r.Lines {
		switch r.Kind {
		case TransactionKindPurchase:
			add(line.Source(), line.Quantity, MovementKindPurchase)
		case TransactionKindSale:
			add(line.Source(), -line.Quantity, MovementKindSale)
		case TransactionKindAdjustment:
			add(line.Source(), line.Quantity, MovementKindAdjustment)
		case TransactionKindTransfer:
			add(line.Source(), -line.Quantity, MovementKindTransferOut)
			add(line.Destination(), line.Quantity, MovementKindTransferIn)
		}
	}
	return out
}

// ProductIDs returns every product the request touches, destinations included.
func (r Request) ProductIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range r.Movements() {
		if _, ok := seen[m.ProductID]; ok {
			continue
		}
		seen[m.ProductID] = struct{}{}
		ids = append(ids, m.ProductID)
	}
	return ids
}
