package coin

import (
	"context"
	"errors"
	"strings"
)

var ErrUnknownCoin = errors.New("unknown coin")

// Quote is the price of a coin in the reference currency.
type Quote struct {
	CoinID string  `json:"coin_id"`
	Price  float64 `json:"price"`
}

type PriceSource interface {
	Price(ctx context.Context, coinID string) (float64, error)
}

// StubPriceSource answers every lookup with a fixed price until a real
// market feed is connected.
type StubPriceSource struct {
	Fixed float64
}

func NewStubPriceSource() StubPriceSource { return StubPriceSource{Fixed: 100.0} }

func (s StubPriceSource) Price(ctx context.Context, coinID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Fixed, nil
}

type Service struct {
	source PriceSource
}

func NewService(source PriceSource) *Service {
	if source == nil {
		source = NewStubPriceSource()
	}
	return &Service{source: source}
}

func (s *Service) Quote(ctx context.Context, coinID string) (Quote, error) {
	coinID = strings.TrimSpace(coinID)
	if coinID == "" {
		return Quote{}, ErrUnknownCoin
	}
	p, err := s.source.Price(ctx, coinID)
	if err != nil {
		return Quote{}, err
	}
	return Quote{CoinID: coinID, Price: p}, nil
}
