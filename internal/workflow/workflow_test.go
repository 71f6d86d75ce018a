package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
	"github.com/betbot/earnbot/pkg/bitget/earn"
	"github.com/betbot/earnbot/pkg/bitget/market"
	"github.com/betbot/earnbot/pkg/bitget/mix"
	"github.com/betbot/earnbot/pkg/bitget/spot"
)

const (
	productsPath    = "/api/v2/earn/savings/product"
	subscribePath   = "/api/v2/earn/savings/subscribe"
	redeemPath      = "/api/v2/earn/savings/redeem"
	spotAssetsPath  = "/api/v2/spot/account/assets"
	spotOrderPath   = "/api/v2/spot/trade/place-order"
	spotOrderInfo   = "/api/v2/spot/trade/orderInfo"
	transferPath    = "/api/v2/spot/wallet/transfer"
	mixAccountPath  = "/api/v2/mix/account/account"
	mixAccountsPath = "/api/v2/mix/account/accounts"
	mixTickerPath   = "/api/v2/mix/market/ticker"
	mixOrderPath    = "/api/v2/mix/order/place-order"
	mixOrderDetail  = "/api/v2/mix/order/detail"
)

// fakeExec serves canned payloads per path, consuming queued responses in
// order; the last one repeats. All calls and bodies are recorded.
type fakeExec struct {
	responses map[string][]json.RawMessage
	errs      map[string]error

	calls  []string
	bodies map[string][]map[string]string
}

func (f *fakeExec) Execute(ctx context.Context, method, path string, params map[string]string, body any) (json.RawMessage, error) {
	f.calls = append(f.calls, path)
	if body != nil {
		if m, ok := body.(map[string]string); ok {
			if f.bodies == nil {
				f.bodies = map[string][]map[string]string{}
			}
			f.bodies[path] = append(f.bodies[path], m)
		}
	}
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	queue := f.responses[path]
	if len(queue) == 0 {
		return nil, errors.New("no canned response for " + path)
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[path] = queue[1:]
	}
	return resp, nil
}

func (f *fakeExec) called(path string) int {
	n := 0
	for _, p := range f.calls {
		if p == path {
			n++
		}
	}
	return n
}

func testAdjuster() *market.Adjuster {
	return market.NewAdjuster(
		map[string]market.SpotSpec{
			"BTCUSDT": {
				Symbol:            "BTCUSDT",
				PricePrecision:    2,
				QuantityPrecision: 4,
				QuotePrecision:    2,
				MinTradeAmount:    decimal.RequireFromString("0.0001"),
			},
		},
		map[string]market.ContractSpec{
			"BTCUSDT": {
				Symbol:         "BTCUSDT",
				PricePlace:     1,
				PriceEndStep:   5,
				VolumePlace:    3,
				SizeMultiplier: decimal.RequireFromString("0.001"),
				MinTradeNum:    decimal.RequireFromString("0.001"),
			},
		},
	)
}

type nopObserver struct{}

func (nopObserver) OnStep(StepEvent) {}

// newTestOrchestrator wires services over the fake and replaces the clock:
// sleeping advances fake time instantly, so settlement bounds are exact.
func newTestOrchestrator(exec *fakeExec, opts Options) *Orchestrator {
	adj := testAdjuster()
	o := New(
		earn.NewService(exec),
		spot.NewService(exec, adj),
		mix.NewService(exec, adj),
		adj,
		opts,
	)
	o.obs = nopObserver{}
	now := time.Unix(1_700_000_000, 0)
	o.now = func() time.Time { return now }
	o.sleep = func(ctx context.Context, d time.Duration) error {
		now = now.Add(d)
		return nil
	}
	return o
}

func activeProduct() json.RawMessage {
	return json.RawMessage(`[{"productId":"p1","coin":"USDT","periodType":"flexible","status":"in_progress"}]`)
}

func TestBuyFromSavingsMarket(t *testing.T) {
	exec := &fakeExec{responses: map[string][]json.RawMessage{
		productsPath:   {activeProduct()},
		redeemPath:     {json.RawMessage(`{"orderId":"r-1"}`)},
		spotAssetsPath: {json.RawMessage(`[{"coin":"USDT","available":"20"}]`)},
		spotOrderPath:  {json.RawMessage(`{"orderId":"o-1","clientOid":"c-1"}`)},
	}}
	o := newTestOrchestrator(exec, Options{})

	res, err := o.BuyFromSavings(context.Background(), BuyFromSavingsParams{
		Symbol:    "BTCUSDT",
		QuoteCoin: "USDT",
		Amount:    decimal.RequireFromString("10.999"),
		OrderType: spot.TypeMarket,
	})
	if err != nil {
		t.Fatalf("BuyFromSavings() error: %v", err)
	}
	if res.RedeemOrderID != "r-1" || res.BuyOrderID != "o-1" {
		t.Fatalf("result = %+v, want redeem r-1 and order o-1", res)
	}
	// The redeemed amount flows through quote precision before placement.
	body := exec.bodies[spotOrderPath][0]
	if body["size"] != "10.99" {
		t.Fatalf("order size = %q, want quote-truncated 10.99", body["size"])
	}
	if body["side"] != "buy" || body["orderType"] != "market" {
		t.Fatalf("order body = %v", body)
	}
	if len(res.Steps) != 3 {
		t.Fatalf("steps = %v, want redeem, settlement wait, order", res.Steps)
	}
	for _, s := range res.Steps {
		if s.Status != StepCompleted {
			t.Fatalf("step %s status = %s, want completed", s.Step, s.Status)
		}
	}
}

func TestBuyFromSavingsLimitRequiresPrice(t *testing.T) {
	exec := &fakeExec{}
	o := newTestOrchestrator(exec, Options{})

	_, err := o.BuyFromSavings(context.Background(), BuyFromSavingsParams{
		Symbol:    "BTCUSDT",
		QuoteCoin: "USDT",
		Amount:    decimal.NewFromInt(10),
		OrderType: spot.TypeLimit,
	})
	var ve *bitget.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	// Validation happens before any funds move.
	if len(exec.calls) != 0 {
		t.Fatalf("calls = %v, want none before validation", exec.calls)
	}
}

func TestBuyFromSavingsSettlementTimeout(t *testing.T) {
	exec := &fakeExec{responses: map[string][]json.RawMessage{
		productsPath:   {activeProduct()},
		redeemPath:     {json.RawMessage(`{"orderId":"r-1"}`)},
		spotAssetsPath: {json.RawMessage(`[{"coin":"USDT","available":"0"}]`)},
	}}
	o := newTestOrchestrator(exec, Options{
		SettleInterval: 100 * time.Millisecond,
		SettleTimeout:  time.Second,
	})

	res, err := o.BuyFromSavings(context.Background(), BuyFromSavingsParams{
		Symbol:    "BTCUSDT",
		QuoteCoin: "USDT",
		Amount:    decimal.NewFromInt(10),
		OrderType: spot.TypeMarket,
	})
	var timeout *bitget.SettlementTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want SettlementTimeoutError", err)
	}
	// The partial result still names the completed redemption.
	if res.RedeemOrderID != "r-1" {
		t.Fatalf("redeem order id = %q, want r-1", res.RedeemOrderID)
	}
	if res.BuyOrderID != "" {
		t.Fatalf("buy order id = %q, want empty after timeout", res.BuyOrderID)
	}
	if exec.called(spotOrderPath) != 0 {
		t.Fatalf("order was placed despite settlement timeout")
	}
}

func TestSellToSavingsDepositsProceeds(t *testing.T) {
	exec := &fakeExec{responses: map[string][]json.RawMessage{
		spotOrderPath: {json.RawMessage(`{"orderId":"o-9","clientOid":"c-9"}`)},
		spotOrderInfo: {
			json.RawMessage(`[{"orderId":"o-9","status":"live"}]`),
			json.RawMessage(`[{"orderId":"o-9","status":"filled","quoteVolume":"123.456789"}]`),
		},
		productsPath:  {activeProduct()},
		subscribePath: {json.RawMessage(`{"orderId":"s-3"}`)},
	}}
	o := newTestOrchestrator(exec, Options{})

	res, err := o.SellToSavings(context.Background(), SellToSavingsParams{
		Symbol:     "BTCUSDT",
		AmountBase: decimal.RequireFromString("0.5"),
		OrderType:  spot.TypeMarket,
	})
	if err != nil {
		t.Fatalf("SellToSavings() error: %v", err)
	}
	if res.SellOrderID != "o-9" || res.DepositOrderID != "s-3" {
		t.Fatalf("result = %+v", res)
	}
	if res.DepositSkipped {
		t.Fatalf("deposit marked skipped on a filled order")
	}
	// Proceeds come from the re-queried order, truncated to quote precision.
	body := exec.bodies[subscribePath][0]
	if body["amount"] != "123.45" {
		t.Fatalf("subscribe amount = %q, want 123.45", body["amount"])
	}
	if exec.called(spotOrderInfo) != 2 {
		t.Fatalf("order info calls = %d, want 2 (live then filled)", exec.called(spotOrderInfo))
	}
}

func TestSellToSavingsSkipsDepositWhenUnfilled(t *testing.T) {
	exec := &fakeExec{responses: map[string][]json.RawMessage{
		spotOrderPath: {json.RawMessage(`{"orderId":"o-9","clientOid":"c-9"}`)},
		spotOrderInfo: {json.RawMessage(`[{"orderId":"o-9","status":"live"}]`)},
	}}
	o := newTestOrchestrator(exec, Options{
		SettleInterval: 100 * time.Millisecond,
		SettleTimeout:  time.Second,
	})

	res, err := o.SellToSavings(context.Background(), SellToSavingsParams{
		Symbol:     "BTCUSDT",
		AmountBase: decimal.RequireFromString("0.5"),
		OrderType:  spot.TypeLimit,
		Price:      decimal.NewFromInt(65000),
	})
	if err != nil {
		t.Fatalf("SellToSavings() error: %v", err)
	}
	if !res.DepositSkipped || res.DepositOrderID != "" {
		t.Fatalf("result = %+v, want skipped deposit with no order id", res)
	}
	if res.SellOrderID != "o-9" {
		t.Fatalf("sell order id = %q, want o-9", res.SellOrderID)
	}
	if exec.called(subscribePath) != 0 {
		t.Fatalf("subscribe was called for an unfilled order")
	}
}

func TestEnterPositionHedgeMode(t *testing.T) {
	exec := &fakeExec{responses: map[string][]json.RawMessage{
		productsPath:    {activeProduct()},
		redeemPath:      {json.RawMessage(`{"orderId":"r-7"}`)},
		spotAssetsPath:  {json.RawMessage(`[{"coin":"USDT","available":"130"}]`)},
		transferPath:    {json.RawMessage(`{"transferId":"t-1","clientOid":""}`)},
		mixAccountsPath: {json.RawMessage(`[{"marginCoin":"USDT","available":"130"}]`)},
		mixAccountPath:  {json.RawMessage(`{"posMode":"hedge_mode"}`)},
		mixTickerPath:   {json.RawMessage(`[{"symbol":"BTCUSDT","lastPr":"64990","markPrice":"65000"}]`)},
		mixOrderPath:    {json.RawMessage(`{"orderId":"f-1","clientOid":"fc-1"}`)},
	}}
	o := newTestOrchestrator(exec, Options{})

	res, err := o.EnterPositionFromSavings(context.Background(), EnterPositionParams{
		Symbol:    "BTCUSDT",
		Amount:    decimal.NewFromInt(130),
		Side:      SideLong,
		OrderType: spot.TypeMarket,
	})
	if err != nil {
		t.Fatalf("EnterPositionFromSavings() error: %v", err)
	}
	if res.PositionMode != mix.ModeHedge || res.OrderID != "f-1" {
		t.Fatalf("result = %+v", res)
	}
	body := exec.bodies[mixOrderPath][0]
	if body["side"] != "buy" || body["tradeSide"] != "open" {
		t.Fatalf("hedge-mode open body = %v, want side buy with tradeSide open", body)
	}
	if body["size"] != "0.002" {
		t.Fatalf("size = %q, want 0.002 from 130 USDT at mark 65000", body["size"])
	}
	if _, ok := body["reduceOnly"]; ok {
		t.Fatalf("reduceOnly set on an opening order")
	}
}

func TestExitPositionOneWayClosesLongWithSell(t *testing.T) {
	exec := &fakeExec{responses: map[string][]json.RawMessage{
		mixAccountPath: {json.RawMessage(`{"posMode":"one_way_mode"}`)},
		mixOrderPath:   {json.RawMessage(`{"orderId":"f-2","clientOid":"fc-2"}`)},
		mixOrderDetail: {json.RawMessage(`{"orderId":"f-2","state":"filled","baseVolume":"0.002"}`)},
		mixAccountsPath: {
			json.RawMessage(`[{"marginCoin":"USDT","available":"0"}]`),
			json.RawMessage(`[{"marginCoin":"USDT","available":"42.5"}]`),
		},
		transferPath:   {json.RawMessage(`{"transferId":"t-2","clientOid":""}`)},
		spotAssetsPath: {json.RawMessage(`[{"coin":"USDT","available":"42.5"}]`)},
		productsPath:   {activeProduct()},
		subscribePath:  {json.RawMessage(`{"orderId":"s-8"}`)},
	}}
	o := newTestOrchestrator(exec, Options{})

	res, err := o.ExitPositionToSavings(context.Background(), ExitPositionParams{
		Symbol:    "BTCUSDT",
		Side:      SideLong,
		SizeBase:  decimal.RequireFromString("0.002"),
		OrderType: spot.TypeMarket,
	})
	if err != nil {
		t.Fatalf("ExitPositionToSavings() error: %v", err)
	}
	body := exec.bodies[mixOrderPath][0]
	if body["side"] != "sell" {
		t.Fatalf("one-way close side = %q, want sell for a long", body["side"])
	}
	if _, ok := body["tradeSide"]; ok {
		t.Fatalf("tradeSide set in one-way mode: %v", body)
	}
	if body["reduceOnly"] != "YES" {
		t.Fatalf("reduceOnly = %q, want YES", body["reduceOnly"])
	}
	if res.TransferID != "t-2" || res.DepositOrderID != "s-8" {
		t.Fatalf("result = %+v", res)
	}
	sweep := exec.bodies[subscribePath][0]
	if sweep["amount"] != "42.5" {
		t.Fatalf("swept amount = %q, want 42.5", sweep["amount"])
	}
}

func TestExitPositionSkipsSweepWhenNothingFreed(t *testing.T) {
	exec := &fakeExec{responses: map[string][]json.RawMessage{
		mixAccountPath:  {json.RawMessage(`{"posMode":"hedge_mode"}`)},
		mixOrderPath:    {json.RawMessage(`{"orderId":"f-3","clientOid":"fc-3"}`)},
		mixOrderDetail:  {json.RawMessage(`{"orderId":"f-3","state":"filled"}`)},
		mixAccountsPath: {json.RawMessage(`[{"marginCoin":"USDT","available":"0"}]`)},
	}}
	o := newTestOrchestrator(exec, Options{
		SettleInterval: 100 * time.Millisecond,
		SettleTimeout:  time.Second,
	})

	res, err := o.ExitPositionToSavings(context.Background(), ExitPositionParams{
		Symbol:    "BTCUSDT",
		Side:      SideLong,
		SizeBase:  decimal.RequireFromString("0.002"),
		OrderType: spot.TypeMarket,
	})
	if err != nil {
		t.Fatalf("ExitPositionToSavings() error: %v", err)
	}
	if !res.SweepSkipped {
		t.Fatalf("result = %+v, want sweep skipped", res)
	}
	// Hedge-mode close of a long keeps side buy.
	body := exec.bodies[mixOrderPath][0]
	if body["side"] != "buy" || body["tradeSide"] != "close" {
		t.Fatalf("hedge-mode close body = %v, want side buy with tradeSide close", body)
	}
	if exec.called(transferPath) != 0 || exec.called(subscribePath) != 0 {
		t.Fatalf("sweep calls made despite zero freed margin: %v", exec.calls)
	}
}
