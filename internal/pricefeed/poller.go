package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arena-token-ledger/internal/domain"
	"arena-token-ledger/internal/observability"
	"arena-token-ledger/internal/storage"
)

// ErrInvalidQuote is returned for a non-positive quote.
var ErrInvalidQuote = errors.New("pricefeed: non-positive quote")

// Poller appends quotes from the first healthy source to the price store.
type Poller struct {
	sources []Source
	store   storage.AvaxPriceStore
	logger  *zap.Logger
	now     func() time.Time
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Sources []Source // tried in order
	Store   storage.AvaxPriceStore
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewPoller creates a poller.
func NewPoller(opts PollerOptions) *Poller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		sources: opts.Sources,
		store:   opts.Store,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// PollOnce fetches a quote and stores it. Sources are tried in order until
// one returns a valid quote.
func (p *Poller) PollOnce(ctx context.Context) (*domain.AvaxPrice, error) {
	if len(p.sources) == 0 {
		return nil, errors.New("pricefeed: no sources configured")
	}

	var errs []error
	for _, src := range p.sources {
		price, err := src.Fetch(ctx)
		if err == nil && !price.IsPositive() {
			err = fmt.Errorf("%w: %s", ErrInvalidQuote, price)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("price source failed", zap.String("source", src.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		point := &domain.AvaxPrice{
			Price:     price,
			Source:    src.Name(),
			FetchedAt: p.now().UnixMilli(),
		}
		if err := p.store.Insert(ctx, point); err != nil {
			return nil, fmt.Errorf("store avax price: %w", err)
		}

		f, _ := price.Float64()
		observability.UpdateAvaxPrice(f)
		p.logger.Debug("avax price updated", zap.String("source", src.Name()), zap.String("price", price.String()))
		return point, nil
	}

	return nil, fmt.Errorf("all price sources failed: %w", errors.Join(errs...))
}
