package domain

// Product is the ledger's view of a catalog item. Descriptive attributes live in the catalog.
type Product struct {
	ID               string
	Unit             string
	ReorderThreshold int64
	AllowBackorder   bool
}

// BelowReorder reports whether quantity has dropped to or under the reorder threshold. A zero
// threshold disables the check.
func (p Product) BelowReorder(quantity int64) bool {
	return p.ReorderThreshold > 0 && quantity <= p.ReorderThreshold
}
