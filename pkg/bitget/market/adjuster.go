package market

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
)

// Adjuster quantizes arbitrary decimal inputs to exchange-legal order
// parameters. Specs are fetched once and read-only afterwards, so an
// Adjuster may be shared across goroutines; a restart is required to pick
// up listing changes (known staleness risk).
type Adjuster struct {
	spot      map[string]SpotSpec
	contracts map[string]ContractSpec
}

// Load fetches spot and futures instrument specs and builds an Adjuster.
func Load(ctx context.Context, exec bitget.Executor) (*Adjuster, error) {
	spot, err := FetchSpotSpecs(ctx, exec)
	if err != nil {
		return nil, err
	}
	contracts, err := FetchContractSpecs(ctx, exec)
	if err != nil {
		return nil, err
	}
	return NewAdjuster(spot, contracts), nil
}

// NewAdjuster builds an Adjuster from already-fetched specs. Either map may
// be nil when only one venue is used.
func NewAdjuster(spot map[string]SpotSpec, contracts map[string]ContractSpec) *Adjuster {
	if spot == nil {
		spot = map[string]SpotSpec{}
	}
	if contracts == nil {
		contracts = map[string]ContractSpec{}
	}
	return &Adjuster{spot: spot, contracts: contracts}
}

// SpotSpec returns the constraints for a spot symbol.
func (a *Adjuster) SpotSpec(symbol string) (SpotSpec, error) {
	spec, ok := a.spot[symbol]
	if !ok {
		return SpotSpec{}, fmt.Errorf("%w: %s", bitget.ErrUnknownSymbol, symbol)
	}
	return spec, nil
}

// ContractSpec returns the constraints for a futures contract.
func (a *Adjuster) ContractSpec(symbol string) (ContractSpec, error) {
	spec, ok := a.contracts[symbol]
	if !ok {
		return ContractSpec{}, fmt.Errorf("%w: %s", bitget.ErrUnknownSymbol, symbol)
	}
	return spec, nil
}

// SpotPrice rounds a spot price to the symbol's price precision.
func (a *Adjuster) SpotPrice(symbol string, price decimal.Decimal) (string, error) {
	spec, err := a.SpotSpec(symbol)
	if err != nil {
		return "", err
	}
	return price.Round(spec.PricePrecision).StringFixed(spec.PricePrecision), nil
}

// SpotSize truncates a base-asset size to the symbol's quantity precision.
// Truncation, never rounding: rounding up could request more than the
// caller's available balance.
func (a *Adjuster) SpotSize(symbol string, size decimal.Decimal) (string, error) {
	spec, err := a.SpotSpec(symbol)
	if err != nil {
		return "", err
	}
	truncated := size.Truncate(spec.QuantityPrecision)
	if spec.MinTradeAmount.IsPositive() && truncated.LessThan(spec.MinTradeAmount) {
		return "", fmt.Errorf("%w: %s < %s for %s",
			bitget.ErrBelowMinTradeSize, truncated, spec.MinTradeAmount, symbol)
	}
	return truncated.StringFixed(spec.QuantityPrecision), nil
}

// SpotQuoteSize truncates a quote-asset amount to the symbol's quote
// precision. Used for market buys, where size is denominated in quote.
func (a *Adjuster) SpotQuoteSize(symbol string, amount decimal.Decimal) (string, error) {
	spec, err := a.SpotSpec(symbol)
	if err != nil {
		return "", err
	}
	return amount.Truncate(spec.QuotePrecision).StringFixed(spec.QuotePrecision), nil
}

// ContractPrice quantizes a futures price. Contracts with priceEndStep > 1
// only accept prices on the step grid, so the price is floored to the
// nearest multiple of endStep/10^place before formatting; naive rounding
// would be rejected by the exchange.
func (a *Adjuster) ContractPrice(symbol string, price decimal.Decimal) (string, error) {
	spec, err := a.ContractSpec(symbol)
	if err != nil {
		return "", err
	}
	if spec.PriceEndStep <= 1 {
		return price.Round(spec.PricePlace).StringFixed(spec.PricePlace), nil
	}
	step := decimal.New(spec.PriceEndStep, -spec.PricePlace)
	floored := price.Div(step).Floor().Mul(step)
	return floored.StringFixed(spec.PricePlace), nil
}

// ContractSize truncates a contract size to the instrument's volume
// precision, flooring whole-number contracts to the size multiplier.
func (a *Adjuster) ContractSize(symbol string, size decimal.Decimal) (string, error) {
	spec, err := a.ContractSpec(symbol)
	if err != nil {
		return "", err
	}
	if size.LessThan(spec.MinTradeNum) {
		return "", fmt.Errorf("%w: %s < %s for %s",
			bitget.ErrBelowMinTradeSize, size, spec.MinTradeNum, symbol)
	}
	if spec.VolumePlace == 0 {
		floored := size.Div(spec.SizeMultiplier).Floor().Mul(spec.SizeMultiplier)
		return floored.Truncate(0).StringFixed(0), nil
	}
	return size.Truncate(spec.VolumePlace).StringFixed(spec.VolumePlace), nil
}
