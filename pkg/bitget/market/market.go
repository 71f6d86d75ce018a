// Package market loads per-instrument numeric constraints and quantizes
// prices and sizes to exchange-legal order parameters.
package market

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
)

const (
	spotSymbolsPath = "/api/v2/spot/public/symbols"
	contractsPath   = "/api/v2/mix/market/contracts"

	// ProductTypeUSDTFutures selects USDT-margined perpetual contracts.
	ProductTypeUSDTFutures = "USDT-FUTURES"
)

// SpotSpec holds the order constraints of one spot symbol.
type SpotSpec struct {
	Symbol            string
	PricePrecision    int32
	QuantityPrecision int32
	QuotePrecision    int32
	MinTradeAmount    decimal.Decimal
}

// ContractSpec holds the order constraints of one futures contract.
type ContractSpec struct {
	Symbol         string
	PricePlace     int32
	PriceEndStep   int64
	VolumePlace    int32
	SizeMultiplier decimal.Decimal
	MinTradeNum    decimal.Decimal
}

type spotSymbolWire struct {
	Symbol            string `json:"symbol"`
	PricePrecision    string `json:"pricePrecision"`
	QuantityPrecision string `json:"quantityPrecision"`
	QuotePrecision    string `json:"quotePrecision"`
	MinTradeAmount    string `json:"minTradeAmount"`
	Status            string `json:"status"`
}

type contractWire struct {
	Symbol         string `json:"symbol"`
	PricePlace     string `json:"pricePlace"`
	PriceEndStep   string `json:"priceEndStep"`
	VolumePlace    string `json:"volumePlace"`
	SizeMultiplier string `json:"sizeMultiplier"`
	MinTradeNum    string `json:"minTradeNum"`
}

// FetchSpotSpecs retrieves the spot symbol constraints.
func FetchSpotSpecs(ctx context.Context, exec bitget.Executor) (map[string]SpotSpec, error) {
	data, err := exec.Execute(ctx, "GET", spotSymbolsPath, nil, nil)
	if err != nil {
		return nil, err
	}
	var wire []spotSymbolWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.Wrap(err, "decode spot symbols")
	}
	specs := make(map[string]SpotSpec, len(wire))
	for _, w := range wire {
		spec, err := parseSpotSpec(w)
		if err != nil {
			return nil, errors.Wrapf(err, "symbol %s", w.Symbol)
		}
		specs[spec.Symbol] = spec
	}
	return specs, nil
}

// FetchContractSpecs retrieves USDT-futures contract constraints.
func FetchContractSpecs(ctx context.Context, exec bitget.Executor) (map[string]ContractSpec, error) {
	params := map[string]string{"productType": ProductTypeUSDTFutures}
	data, err := exec.Execute(ctx, "GET", contractsPath, params, nil)
	if err != nil {
		return nil, err
	}
	var wire []contractWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.Wrap(err, "decode contracts")
	}
	specs := make(map[string]ContractSpec, len(wire))
	for _, w := range wire {
		spec, err := parseContractSpec(w)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s", w.Symbol)
		}
		specs[spec.Symbol] = spec
	}
	return specs, nil
}

func parseSpotSpec(w spotSymbolWire) (SpotSpec, error) {
	pp, err := parseInt32(w.PricePrecision, "pricePrecision")
	if err != nil {
		return SpotSpec{}, err
	}
	qp, err := parseInt32(w.QuantityPrecision, "quantityPrecision")
	if err != nil {
		return SpotSpec{}, err
	}
	qq, err := parseInt32(w.QuotePrecision, "quotePrecision")
	if err != nil {
		return SpotSpec{}, err
	}
	minAmt := decimal.Zero
	if w.MinTradeAmount != "" {
		minAmt, err = decimal.NewFromString(w.MinTradeAmount)
		if err != nil {
			return SpotSpec{}, errors.Wrap(err, "minTradeAmount")
		}
	}
	return SpotSpec{
		Symbol:            w.Symbol,
		PricePrecision:    pp,
		QuantityPrecision: qp,
		QuotePrecision:    qq,
		MinTradeAmount:    minAmt,
	}, nil
}

func parseContractSpec(w contractWire) (ContractSpec, error) {
	pp, err := parseInt32(w.PricePlace, "pricePlace")
	if err != nil {
		return ContractSpec{}, err
	}
	step, err := strconv.ParseInt(w.PriceEndStep, 10, 64)
	if err != nil {
		return ContractSpec{}, errors.Wrap(err, "priceEndStep")
	}
	vp, err := parseInt32(w.VolumePlace, "volumePlace")
	if err != nil {
		return ContractSpec{}, err
	}
	mult, err := decimal.NewFromString(w.SizeMultiplier)
	if err != nil {
		return ContractSpec{}, errors.Wrap(err, "sizeMultiplier")
	}
	minNum, err := decimal.NewFromString(w.MinTradeNum)
	if err != nil {
		return ContractSpec{}, errors.Wrap(err, "minTradeNum")
	}
	return ContractSpec{
		Symbol:         w.Symbol,
		PricePlace:     pp,
		PriceEndStep:   step,
		VolumePlace:    vp,
		SizeMultiplier: mult,
		MinTradeNum:    minNum,
	}, nil
}

func parseInt32(s, field string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, field)
	}
	return int32(n), nil
}
