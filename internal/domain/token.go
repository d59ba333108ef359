package domain

// Token represents a bonding-curve token.
// Corresponds to tokens table in PostgreSQL.
type Token struct {
	InternalID            int64   `json:"internal_id"`      // curve-assigned id, correlation key for trades
	ContractAddress       *string `json:"contract_address"` // lowercase hex, nil until deployed
	Name                  string  `json:"name"`
	Symbol                string  `json:"symbol"`
	CreatorAddress        string  `json:"creator_address"` // lowercase hex
	A                     int64   `json:"a"`               // curve shape coefficient
	B                     int64   `json:"b"`               // curve shape coefficient
	CurveScaler           string  `json:"curve_scaler"`    // integer string
	Supply                string  `json:"supply"`          // total mintable supply in base units
	LPDeployed            bool    `json:"lp_deployed"`     // migrated to external pool, monotonic
	PairAddress           *string `json:"pair_address"`
	LPPercentage          int64   `json:"lp_percentage"`   // basis points
	SalePercentage        int64   `json:"sale_percentage"` // basis points
	CreatorFeeBasisPoints int64   `json:"creator_fee_basis_points"`
	CreateTokenTxID       string  `json:"create_token_tx_id"`
	SystemCreated         int64   `json:"system_created"` // Unix timestamp in milliseconds
}

// TokenFilter narrows a token listing.
type TokenFilter struct {
	Search string // case-insensitive match on name, symbol, contract or pair
	Limit  int
	Offset int
}
