// Package mix covers Bitget USDT-futures market data, account state and
// order operations.
package mix

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
	tickerPath      = "/api/v2/mix/market/ticker"
	accountPath     = "/api/v2/mix/account/account"
	accountsPath    = "/api/v2/mix/account/accounts"
	placeOrderPath  = "/api/v2/mix/order/place-order"
	orderDetailPath = "/api/v2/mix/order/detail"
)

// Position modes reported by the account configuration endpoint.
const (
	ModeHedge  = "hedge_mode"
	ModeOneWay = "one_way_mode"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade sides used in hedge mode.
const (
	TradeSideOpen  = "open"
	TradeSideClose = "close"
)

// StatusFilled is the terminal success state of a futures order.
const StatusFilled = "filled"

// Service exposes futures operations on one shared request core.
type Service struct {
	exec     bitget.Executor
	adjuster *market.Adjuster
}

// NewService creates the futures capability.
func NewService(exec bitget.Executor, adjuster *market.Adjuster) *Service {
	return &Service{exec: exec, adjuster: adjuster}
}

// Ticker is the market snapshot of one contract.
type Ticker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPr"`
	MarkPrice string `json:"markPrice"`
}

// Ticker fetches the market snapshot for a contract.
func (s *Service) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	params := map[string]string{
		"symbol":      symbol,
		"productType": market.ProductTypeUSDTFutures,
	}
	data, err := s.exec.Execute(ctx, "GET", tickerPath, params, nil)
	if err != nil {
		return Ticker{}, err
	}
	var tickers []Ticker
	if err := json.Unmarshal(data, &tickers); err != nil {
		return Ticker{}, errors.Wrap(err, "decode ticker")
	}
	if len(tickers) == 0 {
		return Ticker{}, errors.Errorf("no ticker data for %s", symbol)
	}
	return tickers[0], nil
}

// UsdtToBaseSize converts a USDT notional into base-asset size at the
// current mark price.
func (s *Service) UsdtToBaseSize(ctx context.Context, symbol string, usdt decimal.Decimal) (decimal.Decimal, error) {
	t, err := s.Ticker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	mark, err := decimal.NewFromString(t.MarkPrice)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "markPrice for %s", symbol)
	}
	if !mark.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive mark price for %s", symbol)
	}
	return usdt.Div(mark), nil
}

type accountConfig struct {
	PosMode string `json:"posMode"`
}

// PositionMode returns the account's position mode for a contract. The
// configuration endpoint is authoritative: a flat account in hedge mode
// still reports hedge mode, which open-position inference would miss.
func (s *Service) PositionMode(ctx context.Context, symbol, marginCoin string) (string, error) {
	params := map[string]string{
		"symbol":      symbol,
		"productType": market.ProductTypeUSDTFutures,
		"marginCoin":  strings.ToUpper(marginCoin),
	}
	data, err := s.exec.Execute(ctx, "GET", accountPath, params, nil)
	if err != nil {
		return "", err
	}
	var cfg accountConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", errors.Wrap(err, "decode account config")
	}
	if cfg.PosMode == "" {
		return "", errors.Errorf("no position mode in account config for %s", symbol)
	}
	return cfg.PosMode, nil
}

// Balance is one margin coin's futures account state.
type Balance struct {
	MarginCoin string `json:"marginCoin"`
	Available  string `json:"available"`
	Equity     string `json:"equity"`
}

// AvailableDecimal parses the available balance.
func (b Balance) AvailableDecimal() (decimal.Decimal, error) {
	if b.Available == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(b.Available)
}

// Accounts returns the futures balance for one margin coin.
func (s *Service) Accounts(ctx context.Context, coin string) (Balance, error) {
	params := map[string]string{
		"coin":        strings.ToUpper(coin),
		"productType": market.ProductTypeUSDTFutures,
	}
	data, err := s.exec.Execute(ctx, "GET", accountsPath, params, nil)
	if err != nil {
		return Balance{}, err
	}
	var balances []Balance
	if err := json.Unmarshal(data, &balances); err != nil {
		return Balance{}, errors.Wrap(err, "decode futures accounts")
	}
	if len(balances) == 0 {
		return Balance{MarginCoin: strings.ToUpper(coin)}, nil
	}
	return balances[0], nil
}

// PlaceOrderParams enumerates every field of a futures order. TradeSide
// must be set in hedge mode and must be empty in one-way mode; callers
// resolve the mode via PositionMode first.
type PlaceOrderParams struct {
	Symbol     string
	MarginMode string // isolated | crossed
	MarginCoin string
	Side       string // buy | sell
	TradeSide  string // open | close, hedge mode only
	OrderType  string // limit | market
	Force      string
	Size       decimal.Decimal
	Price      decimal.Decimal // required for limit orders

	ClientOid  string
	ReduceOnly bool
	STPMode    string

	PresetStopSurplusPrice        decimal.Decimal
	PresetStopLossPrice           decimal.Decimal
	PresetStopSurplusExecutePrice decimal.Decimal
	PresetStopLossExecutePrice    decimal.Decimal
}

// OrderAck identifies a placed futures order.
type OrderAck struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

// PlaceOrder submits a futures order with precision pre-adjustment.
func (s *Service) PlaceOrder(ctx context.Context, p PlaceOrderParams) (OrderAck, error) {
	if p.OrderType == "limit" && p.Price.IsZero() {
		return OrderAck{}, &bitget.ValidationError{Op: "futures order", Reason: "price required for limit orders"}
	}
	size, err := s.adjuster.ContractSize(p.Symbol, p.Size)
	if err != nil {
		return OrderAck{}, err
	}
	marginMode := p.MarginMode
	if marginMode == "" {
		marginMode = "isolated"
	}
	marginCoin := p.MarginCoin
	if marginCoin == "" {
		marginCoin = "USDT"
	}

	body := map[string]string{
		"symbol":      p.Symbol,
		"productType": market.ProductTypeUSDTFutures,
		"marginMode":  marginMode,
		"marginCoin":  marginCoin,
		"size":        size,
		"side":        p.Side,
		"orderType":   p.OrderType,
	}
	if !p.Price.IsZero() {
		price, err := s.adjuster.ContractPrice(p.Symbol, p.Price)
		if err != nil {
			return OrderAck{}, err
		}
		body["price"] = price
	}
	force := p.Force
	if p.OrderType == "limit" && force == "" {
		force = "gtc"
	}
	if force != "" {
		body["force"] = force
	}
	if p.TradeSide != "" {
		body["tradeSide"] = p.TradeSide
	}
	if p.ClientOid != "" {
		body["clientOid"] = p.ClientOid
	}
	if p.ReduceOnly {
		body["reduceOnly"] = "YES"
	}
	if p.STPMode != "" {
		body["stpMode"] = p.STPMode
	}
	setDecimal(body, "presetStopSurplusPrice", p.PresetStopSurplusPrice)
	setDecimal(body, "presetStopLossPrice", p.PresetStopLossPrice)
	setDecimal(body, "presetStopSurplusExecutePrice", p.PresetStopSurplusExecutePrice)
	setDecimal(body, "presetStopLossExecutePrice", p.PresetStopLossExecutePrice)

	data, err := s.exec.Execute(ctx, "POST", placeOrderPath, nil, body)
	if err != nil {
		return OrderAck{}, err
	}
	var ack OrderAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return OrderAck{}, errors.Wrap(err, "decode futures order ack")
	}
	return ack, nil
}

// Order is the exchange's view of one futures order.
type Order struct {
	OrderID    string `json:"orderId"`
	ClientOid  string `json:"clientOid"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	OrderType  string `json:"orderType"`
	Size       string `json:"size"`
	Price      string `json:"price"`
	Status     string `json:"state"`
	BaseVolume string `json:"baseVolume"`
}

// OrderDetail looks up a futures order by exchange id or client oid.
func (s *Service) OrderDetail(ctx context.Context, symbol, orderID, clientOid string) (Order, error) {
	if orderID == "" && clientOid == "" {
		return Order{}, &bitget.ValidationError{Op: "order lookup", Reason: "orderId or clientOid required"}
	}
	params := map[string]string{
		"symbol":      symbol,
		"productType": market.ProductTypeUSDTFutures,
	}
	if orderID != "" {
		params["orderId"] = orderID
	}
	if clientOid != "" {
		params["clientOid"] = clientOid
	}
	data, err := s.exec.Execute(ctx, "GET", orderDetailPath, params, nil)
	if err != nil {
		return Order{}, err
	}
	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return Order{}, errors.Wrap(err, "decode futures order")
	}
	return order, nil
}

func setDecimal(m map[string]string, key string, val decimal.Decimal) {
	if !val.IsZero() {
		m[key] = val.String()
	}
}
