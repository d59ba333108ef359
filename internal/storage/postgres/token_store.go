package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	internal_id, contract_address, name, symbol, creator_address, a, b, curve_scaler::text, supply::text,
	lp_deployed, pair_address, lp_percentage, sale_percentage, creator_fee_basis_points,
	create_token_tx_id, system_created
`

// Insert adds a new token. Returns ErrDuplicateKey if internal_id or contract exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.InternalID <= 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			internal_id, contract_address, name, symbol, creator_address, a, b, curve_scaler, supply,
			lp_deployed, pair_address, lp_percentage, sale_percentage, creator_fee_basis_points,
			create_token_tx_id, system_created
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		t.InternalID,
		lowerPtr(t.ContractAddress),
		t.Name,
		t.Symbol,
		strings.ToLower(t.CreatorAddress),
		t.A,
		t.B,
		numericOrZero(t.CurveScaler),
		numericOrZero(t.Supply),
		t.LPDeployed,
		lowerPtr(t.PairAddress),
		t.LPPercentage,
		t.SalePercentage,
		t.CreatorFeeBasisPoints,
		t.CreateTokenTxID,
		t.SystemCreated,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return wrapErr("insert token", err)
	}
	return nil
}

// GetByInternalID retrieves a token. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByInternalID(ctx context.Context, internalID int64) (*domain.Token, error) {
	return s.getOne(ctx, "get token by id", `internal_id = $1`, internalID)
}

// GetByContract retrieves a token by contract address (case-insensitive).
func (s *TokenStore) GetByContract(ctx context.Context, contract string) (*domain.Token, error) {
	return s.getOne(ctx, "get token by contract", `lower(contract_address) = lower($1)`, contract)
}

// GetByPair retrieves a token by pair address (case-insensitive).
func (s *TokenStore) GetByPair(ctx context.Context, pair string) (*domain.Token, error) {
	return s.getOne(ctx, "get token by pair", `lower(pair_address) = lower($1)`, pair)
}

func (s *TokenStore) getOne(ctx context.Context, op, where string, arg any) (*domain.Token, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE `+where+` LIMIT 1`, arg)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	tokens, err := scanTokens(rows)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, storage.ErrNotFound
	}
	return tokens[0], nil
}

// List returns tokens ordered by internal_id DESC.
func (s *TokenStore) List(ctx context.Context, filter domain.TokenFilter) ([]*domain.Token, error) {
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	query := `SELECT ` + tokenColumns + `
		FROM tokens
		WHERE $1 = '' OR
			name ILIKE '%' || $1 || '%' OR
			symbol ILIKE '%' || $1 || '%' OR
			contract_address ILIKE '%' || $1 || '%' OR
			pair_address ILIKE '%' || $1 || '%'
		ORDER BY internal_id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, strings.TrimSpace(filter.Search), limit, offset)
	if err != nil {
		return nil, wrapErr("list tokens", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// ListRepairCandidates returns curve tokens with afterID < internal_id <= toID.
func (s *TokenStore) ListRepairCandidates(ctx context.Context, afterID, toID int64, limit int) ([]*domain.Token, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	query := `SELECT ` + tokenColumns + `
		FROM tokens
		WHERE NOT lp_deployed
			AND contract_address IS NOT NULL
			AND internal_id > $1
			AND ($2 <= 0 OR internal_id <= $2)
		ORDER BY internal_id ASC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, afterID, toID, lim)
	if err != nil {
		return nil, wrapErr("list repair candidates", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// MarkLPDeployed flips lp_deployed to true and sets the pair address.
func (s *TokenStore) MarkLPDeployed(ctx context.Context, internalID int64, pair string) error {
	query := `
		WITH target AS (SELECT internal_id, lp_deployed FROM tokens WHERE internal_id = $1),
		updated AS (
			UPDATE tokens SET lp_deployed = TRUE, pair_address = $2
			WHERE internal_id = $1 AND NOT lp_deployed
			RETURNING internal_id
		)
		SELECT (SELECT count(*) FROM target)
	`

	var found int
	if err := s.pool.QueryRow(ctx, query, internalID, strings.ToLower(pair)).Scan(&found); err != nil {
		return wrapErr("mark lp deployed", err)
	}
	if found == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountByCreator counts tokens created by an address.
func (s *TokenStore) CountByCreator(ctx context.Context, creator string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM tokens WHERE lower(creator_address) = lower($1)`, creator,
	).Scan(&n)
	if err != nil {
		return 0, wrapErr("count tokens by creator", err)
	}
	return n, nil
}

func scanTokens(rows pgx.Rows) ([]*domain.Token, error) {
	var tokens []*domain.Token

	for rows.Next() {
		var t domain.Token
		err := rows.Scan(
			&t.InternalID, &t.ContractAddress, &t.Name, &t.Symbol, &t.CreatorAddress,
			&t.A, &t.B, &t.CurveScaler, &t.Supply,
			&t.LPDeployed, &t.PairAddress, &t.LPPercentage, &t.SalePercentage, &t.CreatorFeeBasisPoints,
			&t.CreateTokenTxID, &t.SystemCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate token rows", err)
	}

	return tokens, nil
}

func lowerPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(*s)
	return &v
}

func numericOrZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return s
}
