package domain

import "github.com/shopspring/decimal"

// AvaxPrice is one point of the AVAX/USD series.
// Corresponds to avax_prices table in PostgreSQL.
type AvaxPrice struct {
	Price     decimal.Decimal
	Source    string
	FetchedAt int64 // Unix timestamp in milliseconds
}

// CurveAnchor pins the curve coefficient of a token to the first anchor used.
// Corresponds to curve_anchors table in PostgreSQL.
type CurveAnchor struct {
	TokenID         int64
	AnchorTxHash    string
	AnchorTimestamp int64
	K               decimal.Decimal
	CreatedAt       int64
}

// RepairCheckpoint records the last fully repaired token for a repair job.
type RepairCheckpoint struct {
	JobID       string
	LastTokenID int64
	UpdatedAt   int64
}
