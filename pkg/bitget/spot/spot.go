// Package spot covers Bitget spot account, trade and wallet-transfer
// operations.
package spot

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
	"github.com/betbot/earnbot/pkg/bitget/market"
)

const (
	assetsPath     = "/api/v2/spot/account/assets"
	orderInfoPath  = "/api/v2/spot/trade/orderInfo"
	placeOrderPath = "/api/v2/spot/trade/place-order"
	transferPath   = "/api/v2/spot/wallet/transfer"

	// StatusFilled is the terminal success state of an order.
	StatusFilled = "filled"
)

// Order sides and types.
const (
	SideBuy    = "buy"
	SideSell   = "sell"
	TypeLimit  = "limit"
	TypeMarket = "market"
)

// Account transfer types for the wallet transfer endpoint.
const (
	AccountSpot           = "spot"
	AccountUSDTFutures    = "usdt_futures"
	AccountCoinFutures    = "coin_futures"
	AccountUSDCFutures    = "usdc_futures"
	AccountCrossedMargin  = "crossed_margin"
	AccountIsolatedMargin = "isolated_margin"
)

// Service exposes spot operations on one shared request core, with
// precision adjustment applied before any order-placing call.
type Service struct {
	exec     bitget.Executor
	adjuster *market.Adjuster
}

// NewService creates the spot capability.
func NewService(exec bitget.Executor, adjuster *market.Adjuster) *Service {
	return &Service{exec: exec, adjuster: adjuster}
}

// Asset is one coin's spot balance.
type Asset struct {
	Coin      string `json:"coin"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Locked    string `json:"locked"`
}

// AvailableDecimal parses the available balance.
func (a Asset) AvailableDecimal() (decimal.Decimal, error) {
	if a.Available == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(a.Available)
}

// Assets returns the spot balance for one coin. A coin the account never
// touched yields a zero Asset.
func (s *Service) Assets(ctx context.Context, coin string) (Asset, error) {
	params := map[string]string{
		"coin":      strings.ToUpper(coin),
		"assetType": "hold_only",
	}
	data, err := s.exec.Execute(ctx, "GET", assetsPath, params, nil)
	if err != nil {
		return Asset{}, err
	}
	var assets []Asset
	if err := json.Unmarshal(data, &assets); err != nil {
		return Asset{}, errors.Wrap(err, "decode spot assets")
	}
	if len(assets) == 0 {
		return Asset{Coin: strings.ToUpper(coin)}, nil
	}
	return assets[0], nil
}

// PlaceOrderParams enumerates every field of a spot order. Optional fields
// are included on the wire only when set.
type PlaceOrderParams struct {
	Symbol    string
	Side      string // buy | sell
	OrderType string // limit | market
	Force     string // gtc, post_only, fok, ioc; applies to limit orders
	// Size is base quantity, except for market buys where the exchange
	// expects a quote amount.
	Size  decimal.Decimal
	Price decimal.Decimal // required for limit orders

	ClientOid     string
	TriggerPrice  decimal.Decimal
	TpslType      string
	RequestTime   string
	ReceiveWindow string
	STPMode       string

	PresetTakeProfitPrice  decimal.Decimal
	ExecuteTakeProfitPrice decimal.Decimal
	PresetStopLossPrice    decimal.Decimal
	ExecuteStopLossPrice   decimal.Decimal
}

// OrderAck identifies a placed order.
type OrderAck struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

// PlaceOrder submits a spot order. Price and size are quantized to the
// symbol's constraints first; a market buy adjusts the quote amount, every
// other shape the base quantity.
func (s *Service) PlaceOrder(ctx context.Context, p PlaceOrderParams) (OrderAck, error) {
	if p.OrderType == TypeLimit && p.Price.IsZero() {
		return OrderAck{}, &bitget.ValidationError{Op: "spot order", Reason: "price required for limit orders"}
	}

	var size string
	var err error
	if p.OrderType == TypeMarket && p.Side == SideBuy {
		size, err = s.adjuster.SpotQuoteSize(p.Symbol, p.Size)
	} else {
		size, err = s.adjuster.SpotSize(p.Symbol, p.Size)
	}
	if err != nil {
		return OrderAck{}, err
	}

	body := map[string]string{
		"symbol":    p.Symbol,
		"side":      p.Side,
		"orderType": p.OrderType,
		"size":      size,
	}
	if !p.Price.IsZero() {
		price, err := s.adjuster.SpotPrice(p.Symbol, p.Price)
		if err != nil {
			return OrderAck{}, err
		}
		body["price"] = price
	}
	if p.OrderType == TypeLimit {
		force := p.Force
		if force == "" {
			force = "gtc"
		}
		body["force"] = force
	}
	setIfPresent(body, "clientOid", p.ClientOid)
	setDecimalIfPresent(body, "triggerPrice", p.TriggerPrice)
	setIfPresent(body, "tpslType", p.TpslType)
	setIfPresent(body, "requestTime", p.RequestTime)
	setIfPresent(body, "receiveWindow", p.ReceiveWindow)
	setIfPresent(body, "stpMode", p.STPMode)
	setDecimalIfPresent(body, "presetTakeProfitPrice", p.PresetTakeProfitPrice)
	setDecimalIfPresent(body, "executeTakeProfitPrice", p.ExecuteTakeProfitPrice)
	setDecimalIfPresent(body, "presetStopLossPrice", p.PresetStopLossPrice)
	setDecimalIfPresent(body, "executeStopLossPrice", p.ExecuteStopLossPrice)

	data, err := s.exec.Execute(ctx, "POST", placeOrderPath, nil, body)
	if err != nil {
		return OrderAck{}, err
	}
	var ack OrderAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return OrderAck{}, errors.Wrap(err, "decode order ack")
	}
	return ack, nil
}

// Order is the exchange's view of one spot order. Status transitions are
// observed only by re-querying; nothing is mutated locally.
type Order struct {
	OrderID     string `json:"orderId"`
	ClientOid   string `json:"clientOid"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Size        string `json:"size"`
	Price       string `json:"price"`
	Status      string `json:"status"`
	QuoteVolume string `json:"quoteVolume"`
}

// QuoteVolumeDecimal parses the filled quote volume.
func (o Order) QuoteVolumeDecimal() (decimal.Decimal, error) {
	if o.QuoteVolume == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(o.QuoteVolume)
}

// OrderInfo looks up an order by exchange id or client oid.
func (s *Service) OrderInfo(ctx context.Context, orderID, clientOid string) (Order, error) {
	if orderID == "" && clientOid == "" {
		return Order{}, &bitget.ValidationError{Op: "order lookup", Reason: "orderId or clientOid required"}
	}
	params := map[string]string{}
	setIfPresent(params, "orderId", orderID)
	setIfPresent(params, "clientOid", clientOid)
	data, err := s.exec.Execute(ctx, "GET", orderInfoPath, params, nil)
	if err != nil {
		return Order{}, err
	}
	var orders []Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return Order{}, errors.Wrap(err, "decode order info")
	}
	if len(orders) == 0 {
		return Order{}, errors.Errorf("order %s%s not found", orderID, clientOid)
	}
	return orders[0], nil
}

// TransferParams describes a one-shot movement between account types.
type TransferParams struct {
	FromType  string
	ToType    string
	Coin      string
	Amount    decimal.Decimal
	Symbol    string // required when either side is isolated_margin
	ClientOid string
}

// Transfer identifies a completed wallet transfer.
type Transfer struct {
	TransferID string `json:"transferId"`
	ClientOid  string `json:"clientOid"`
}

// Transfer moves funds between product-type accounts. Non-reversible; the
// only local state is the returned identifier.
//
// The sub-account transfer variant additionally requires the parent
// account's API key with IP allowlisting configured; that precondition is
// the caller's to satisfy.
func (s *Service) Transfer(ctx context.Context, p TransferParams) (Transfer, error) {
	if (p.FromType == AccountIsolatedMargin || p.ToType == AccountIsolatedMargin) && p.Symbol == "" {
		return Transfer{}, &bitget.ValidationError{Op: "transfer", Reason: "symbol required for isolated margin transfers"}
	}
	if !p.Amount.IsPositive() {
		return Transfer{}, &bitget.ValidationError{Op: "transfer", Reason: "amount must be positive"}
	}
	body := map[string]string{
		"fromType": p.FromType,
		"toType":   p.ToType,
		"amount":   p.Amount.String(),
		"coin":     p.Coin,
	}
	setIfPresent(body, "symbol", p.Symbol)
	setIfPresent(body, "clientOid", p.ClientOid)

	data, err := s.exec.Execute(ctx, "POST", transferPath, nil, body)
	if err != nil {
		return Transfer{}, err
	}
	var tr Transfer
	if err := json.Unmarshal(data, &tr); err != nil {
		return Transfer{}, errors.Wrap(err, "decode transfer")
	}
	return tr, nil
}

func setIfPresent(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func setDecimalIfPresent(m map[string]string, key string, val decimal.Decimal) {
	if !val.IsZero() {
		m[key] = val.String()
	}
}
