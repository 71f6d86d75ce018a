// Package workflow sequences savings, transfer and trade operations into
// multi-step sagas. Steps execute strictly sequentially and there is no
// automatic compensation: on failure the caller receives a result naming
// exactly which steps completed so recovery can be scripted.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
	"github.com/betbot/earnbot/pkg/bitget/earn"
	"github.com/betbot/earnbot/pkg/bitget/market"
	"github.com/betbot/earnbot/pkg/bitget/mix"
	"github.com/betbot/earnbot/pkg/bitget/spot"
)

// Position sides accepted by the futures sagas.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Recorder persists workflow results for audit. Best-effort: a recording
// failure never fails the saga.
type Recorder interface {
	Record(workflowID string, v any) error
}

// Options tunes an Orchestrator.
type Options struct {
	Observer Observer
	Recorder Recorder
	// SettleInterval is the re-query interval while waiting for
	// settlement; SettleTimeout bounds the total wait.
	SettleInterval time.Duration
	SettleTimeout  time.Duration
}

// Orchestrator composes the capability services into sagas. One workflow
// invocation runs on a single logical thread; concurrent invocations only
// share the client's rate limiter.
type Orchestrator struct {
	earn     *earn.Service
	spot     *spot.Service
	mix      *mix.Service
	adjuster *market.Adjuster

	obs Observer
	rec Recorder

	settleInterval time.Duration
	settleTimeout  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator over the given capabilities.
func New(earnSvc *earn.Service, spotSvc *spot.Service, mixSvc *mix.Service, adjuster *market.Adjuster, opts Options) *Orchestrator {
	obs := opts.Observer
	if obs == nil {
		obs = NewLogObserver()
	}
	interval := opts.SettleInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timeout := opts.SettleTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Orchestrator{
		earn:           earnSvc,
		spot:           spotSvc,
		mix:            mixSvc,
		adjuster:       adjuster,
		obs:            obs,
		rec:            opts.Recorder,
		settleInterval: interval,
		settleTimeout:  timeout,
		now:            time.Now,
		sleep:          sleepCtx,
	}
}

// StepRecord is one entry of a saga's ordered audit trail.
type StepRecord struct {
	Step   string            `json:"step"`
	Status StepStatus        `json:"status"`
	IDs    map[string]string `json:"ids,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// run tracks one saga invocation: its audit trail and observer plumbing.
type run struct {
	o     *Orchestrator
	name  string
	id    string
	steps []StepRecord
}

func (o *Orchestrator) newRun(name string) *run {
	return &run{o: o, name: name, id: uuid.NewString()}
}

func (r *run) emit(step string, status StepStatus, ids map[string]string, err error) {
	r.o.obs.OnStep(StepEvent{
		Workflow:   r.name,
		WorkflowID: r.id,
		Step:       step,
		Status:     status,
		IDs:        ids,
		Err:        err,
		At:         r.o.now(),
	})
}

func (r *run) started(step string) {
	r.emit(step, StepStarted, nil, nil)
}

func (r *run) completed(step string, ids map[string]string) {
	r.steps = append(r.steps, StepRecord{Step: step, Status: StepCompleted, IDs: ids})
	r.emit(step, StepCompleted, ids, nil)
}

func (r *run) skipped(step string) {
	r.steps = append(r.steps, StepRecord{Step: step, Status: StepSkipped})
	r.emit(step, StepSkipped, nil, nil)
}

// failed records the failure and returns the error annotated with the
// step, so callers can tell where the saga stopped.
func (r *run) failed(step string, err error) error {
	r.steps = append(r.steps, StepRecord{Step: step, Status: StepFailed, Error: err.Error()})
	r.emit(step, StepFailed, nil, err)
	return errors.Wrapf(err, "%s: step %s", r.name, step)
}

func (r *run) record(result any) {
	if r.o.rec == nil {
		return
	}
	if err := r.o.rec.Record(r.id, result); err != nil {
		r.emit("journal", StepFailed, nil, err)
	}
}

// BuyFromSavingsParams drives the redeem-then-buy saga.
type BuyFromSavingsParams struct {
	Symbol    string
	QuoteCoin string
	Amount    decimal.Decimal // quote-currency amount to redeem and spend
	OrderType string          // market | limit
	Price     decimal.Decimal // required for limit
	ClientOid string          // generated when empty
	Force     string
}

// BuyFromSavingsResult names every identifier the saga produced.
type BuyFromSavingsResult struct {
	WorkflowID    string       `json:"workflow_id"`
	RedeemOrderID string       `json:"redeem_order_id,omitempty"`
	BuyOrderID    string       `json:"buy_order_id,omitempty"`
	BuyClientOid  string       `json:"buy_client_oid,omitempty"`
	Steps         []StepRecord `json:"steps"`
}

// BuyFromSavings redeems quote funds from flexible savings, waits for them
// to land on the spot account, then places the buy order. For a market buy
// the full redeemed amount is passed through as quote size; for a limit
// order size is amount/price in base units.
func (o *Orchestrator) BuyFromSavings(ctx context.Context, p BuyFromSavingsParams) (*BuyFromSavingsResult, error) {
	r := o.newRun("buy_from_savings")
	res := &BuyFromSavingsResult{WorkflowID: r.id}
	defer func() { res.Steps = r.steps }()

	if !p.Amount.IsPositive() {
		return res, r.failed(StepRedeem, &bitget.ValidationError{Op: "buy from savings", Reason: "amount must be positive"})
	}
	// Validate the order shape before moving any funds: a redeem followed
	// by a rejected order strands the redemption on the spot account.
	if p.OrderType == spot.TypeLimit && p.Price.IsZero() {
		return res, r.failed(StepPlaceOrder, &bitget.ValidationError{Op: "buy from savings", Reason: "price required for limit orders"})
	}

	r.started(StepRedeem)
	redeemID, err := o.earn.Redeem(ctx, p.QuoteCoin, p.Amount)
	if err != nil {
		return res, r.failed(StepRedeem, err)
	}
	res.RedeemOrderID = redeemID
	r.completed(StepRedeem, map[string]string{"redeem_order_id": redeemID})

	r.started(StepWaitSettlement)
	if err := o.waitSettlement(ctx, StepRedeem, func(ctx context.Context) (bool, error) {
		return o.spotAvailableAtLeast(ctx, p.QuoteCoin, p.Amount)
	}); err != nil {
		return res, r.failed(StepWaitSettlement, err)
	}
	r.completed(StepWaitSettlement, nil)

	size := p.Amount
	if p.OrderType == spot.TypeLimit {
		size = p.Amount.Div(p.Price)
	}
	clientOid := p.ClientOid
	if clientOid == "" {
		clientOid = uuid.NewString()
	}

	r.started(StepPlaceOrder)
	ack, err := o.spot.PlaceOrder(ctx, spot.PlaceOrderParams{
		Symbol:    p.Symbol,
		Side:      spot.SideBuy,
		OrderType: p.OrderType,
		Force:     p.Force,
		Size:      size,
		Price:     p.Price,
		ClientOid: clientOid,
	})
	if err != nil {
		return res, r.failed(StepPlaceOrder, err)
	}
	res.BuyOrderID = ack.OrderID
	res.BuyClientOid = ack.ClientOid
	r.completed(StepPlaceOrder, map[string]string{"buy_order_id": ack.OrderID})

	r.record(res)
	return res, nil
}

// SellToSavingsParams drives the sell-then-deposit saga.
type SellToSavingsParams struct {
	Symbol     string
	AmountBase decimal.Decimal // base quantity to sell
	QuoteCoin  string          // defaults to USDT
	OrderType  string
	Price      decimal.Decimal
	ClientOid  string
	Force      string
}

// SellToSavingsResult names every identifier the saga produced. A deposit
// that was skipped (unfilled order, zero proceeds) leaves DepositOrderID
// empty and DepositSkipped true.
type SellToSavingsResult struct {
	WorkflowID     string       `json:"workflow_id"`
	SellOrderID    string       `json:"sell_order_id,omitempty"`
	SellClientOid  string       `json:"sell_client_oid,omitempty"`
	DepositOrderID string       `json:"deposit_order_id,omitempty"`
	DepositSkipped bool         `json:"deposit_skipped,omitempty"`
	Steps          []StepRecord `json:"steps"`
}

// SellToSavings places a sell order, waits for it to reach a terminal
// state, and deposits the quote proceeds into flexible savings. The order
// status is always re-read from the exchange; the placement ack alone is
// never trusted for proceeds.
func (o *Orchestrator) SellToSavings(ctx context.Context, p SellToSavingsParams) (*SellToSavingsResult, error) {
	r := o.newRun("sell_to_savings")
	res := &SellToSavingsResult{WorkflowID: r.id}
	defer func() { res.Steps = r.steps }()

	quoteCoin := p.QuoteCoin
	if quoteCoin == "" {
		quoteCoin = "USDT"
	}
	clientOid := p.ClientOid
	if clientOid == "" {
		clientOid = uuid.NewString()
	}

	r.started(StepPlaceOrder)
	ack, err := o.spot.PlaceOrder(ctx, spot.PlaceOrderParams{
		Symbol:    p.Symbol,
		Side:      spot.SideSell,
		OrderType: p.OrderType,
		Force:     p.Force,
		Size:      p.AmountBase,
		Price:     p.Price,
		ClientOid: clientOid,
	})
	if err != nil {
		return res, r.failed(StepPlaceOrder, err)
	}
	res.SellOrderID = ack.OrderID
	res.SellClientOid = ack.ClientOid
	r.completed(StepPlaceOrder, map[string]string{"sell_order_id": ack.OrderID})

	// Poll until the order leaves the book one way or the other. An order
	// still live at the bound is not an error: the deposit is skipped and
	// the caller keeps both identifiers.
	var order spot.Order
	r.started(StepLookupOrder)
	err = o.waitSettlement(ctx, StepLookupOrder, func(ctx context.Context) (bool, error) {
		order, err = o.spot.OrderInfo(ctx, ack.OrderID, "")
		if err != nil {
			return false, err
		}
		return orderTerminal(order.Status), nil
	})
	if err != nil {
		var timeout *bitget.SettlementTimeoutError
		if !errors.As(err, &timeout) {
			return res, r.failed(StepLookupOrder, err)
		}
	}
	r.completed(StepLookupOrder, map[string]string{"status": order.Status})

	if order.Status != spot.StatusFilled {
		res.DepositSkipped = true
		r.skipped(StepSubscribe)
		r.record(res)
		return res, nil
	}
	proceeds, err := order.QuoteVolumeDecimal()
	if err != nil {
		return res, r.failed(StepLookupOrder, err)
	}
	if !proceeds.IsPositive() {
		res.DepositSkipped = true
		r.skipped(StepSubscribe)
		r.record(res)
		return res, nil
	}

	formatted, err := o.adjuster.SpotQuoteSize(p.Symbol, proceeds)
	if err != nil {
		return res, r.failed(StepSubscribe, err)
	}
	amount, err := decimal.NewFromString(formatted)
	if err != nil {
		return res, r.failed(StepSubscribe, err)
	}

	r.started(StepSubscribe)
	depositID, err := o.earn.Subscribe(ctx, quoteCoin, amount)
	if err != nil {
		return res, r.failed(StepSubscribe, err)
	}
	res.DepositOrderID = depositID
	r.completed(StepSubscribe, map[string]string{"deposit_order_id": depositID})

	r.record(res)
	return res, nil
}

func orderTerminal(status string) bool {
	switch status {
	case spot.StatusFilled, "cancelled", "canceled":
		return true
	}
	return false
}

func (o *Orchestrator) spotAvailableAtLeast(ctx context.Context, coin string, want decimal.Decimal) (bool, error) {
	asset, err := o.spot.Assets(ctx, coin)
	if err != nil {
		return false, err
	}
	avail, err := asset.AvailableDecimal()
	if err != nil {
		return false, err
	}
	return avail.GreaterThanOrEqual(want), nil
}
