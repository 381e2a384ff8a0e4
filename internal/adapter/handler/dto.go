package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Yendza/controller-backend/internal/core/domain"
)

type LineRequest struct {
	ProductID   string `json:"product_id"`
	Location    string `json:"location,omitempty"`
	Quantity    int64  `json:"quantity"`
	ToProductID string `json:"to_product_id,omitempty"`
	ToLocation  string `json:"to_location,omitempty"`
}

type SubmitRequest struct {
	TransactionID string          `json:"transaction_id"`
	Kind          string          `json:"kind"`
	Lines         []LineRequest   `json:"lines"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	OccurredAt    *time.Time      `json:"occurred_at,omitempty"`
}

func (r SubmitRequest) toDomain() domain.Request {
	req := domain.Request{
		TransactionID: r.TransactionID,
		Kind:          domain.TransactionKind(r.Kind),
		Amount:        r.Amount,
		Currency:      r.Currency,
		Reference:     r.Reference,
		Lines:         make([]domain.Line, len(r.Lines)),
	}
	if r.OccurredAt != nil {
		req.OccurredAt = *r.OccurredAt
	}
	for i, l := range r.Lines {
		req.Lines[i] = domain.Line{
			ProductID:   l.ProductID,
			Location:    l.Location,
			Quantity:    l.Quantity,
			ToProductID: l.ToProductID,
			ToLocation:  l.ToLocation,
		}
	}
	return req
}

type MovementResponse struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	ProductID     string    `json:"product_id"`
	Location      string    `json:"location,omitempty"`
	Delta         int64     `json:"delta"`
	Kind          string    `json:"kind"`
	Sequence      int64     `json:"sequence"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func newMovementResponse(m domain.StockMovement) MovementResponse {
	return MovementResponse{
		ID:            m.ID.String(),
		TransactionID: m.TransactionID,
		ProductID:     m.ProductID,
		Location:      m.Location,
		Delta:         m.Delta,
		Kind:          string(m.Kind),
		Sequence:      m.Sequence,
		OccurredAt:    m.OccurredAt,
	}
}

type TransactionResponse struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	Status      string             `json:"status"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency,omitempty"`
	Reference   string             `json:"reference,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
	CommittedAt *time.Time         `json:"committed_at,omitempty"`
	Movements   []MovementResponse `json:"movements"`
}

func newTransactionResponse(t domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:         t.ID,
		Kind:       string(t.Kind),
		Status:     string(t.Status),
		Amount:     t.Amount,
		Currency:   t.Currency,
		Reference:  t.Reference,
		OccurredAt: t.OccurredAt,
		Movements:  make([]MovementResponse, len(t.Movements)),
	}
	if !t.CommittedAt.IsZero() {
		committed := t.CommittedAt
		resp.CommittedAt = &committed
	}
	for i, m := range t.Movements {
		resp.Movements[i] = newMovementResponse(m)
	}
	return resp
}

type LevelResponse struct {
	ProductID      string    `json:"product_id"`
	Location       string    `json:"location,omitempty"`
	Quantity       int64     `json:"quantity"`
	Version        int64     `json:"version"`
	LastSequence   int64     `json:"last_sequence"`
	LastMovementID string    `json:"last_movement_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
	Unit           string    `json:"unit,omitempty"`
	BelowReorder   bool      `json:"below_reorder"`
}

func newLevelResponse(l domain.StockLevel, p domain.Product) LevelResponse {
	resp := LevelResponse{
		ProductID:    l.Key.ProductID,
		Location:     l.Key.Location,
		Quantity:     l.Quantity,
		Version:      l.Version,
		LastSequence: l.LastSequence,
		UpdatedAt:    l.UpdatedAt,
		Unit:         p.Unit,
		BelowReorder: p.BelowReorder(l.Quantity),
	}
	if l.LastMovementID != 0 {
		resp.LastMovementID = l.LastMovementID.String()
	}
	return resp
}

type HistoryResponse struct {
	ProductID string    `json:"product_id"`
	Location  string    `json:"location,omitempty"`
	At        time.Time `json:"at"`
	Quantity  int64     `json:"quantity"`
}

type ReconciliationResponse struct {
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	Expected  int64     `json:"expected"`
	Actual    int64     `json:"actual"`
	CheckedAt time.Time `json:"checked_at"`
}

func newReconciliationResponses(results []domain.Reconciliation) []ReconciliationResponse {
	out := make([]ReconciliationResponse, len(results))
	for i, r := range results {
		out[i] = ReconciliationResponse{
			Key:       r.Key.String(),
			Status:    string(r.Status),
			Expected:  r.Expected,
			Actual:    r.Actual,
			CheckedAt: r.CheckedAt,
		}
	}
	return out
}

type LevelRequest struct {
	ProductID string `json:"product_id"`
	Location  string `json:"location,omitempty"`
}

type TransactionRequest struct {
	ID string `json:"id"`
}

type ReconcileRequest struct {
	ProductID string `json:"product_id"`
}

type ReconcileResponse struct {
	Results []ReconciliationResponse `json:"results"`
}
