package workflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
	"github.com/betbot/earnbot/pkg/bitget/mix"
	"github.com/betbot/earnbot/pkg/bitget/spot"
)

// EnterPositionParams drives the savings-to-futures-position saga.
type EnterPositionParams struct {
	Symbol     string
	MarginCoin string          // defaults to USDT
	Amount     decimal.Decimal // margin-coin notional to redeem and deploy
	Side       string          // long | short
	OrderType  string          // market | limit
	Price      decimal.Decimal // required for limit
	MarginMode string          // defaults to isolated
	ClientOid  string
}

// EnterPositionResult names every identifier the saga produced.
type EnterPositionResult struct {
	WorkflowID    string       `json:"workflow_id"`
	RedeemOrderID string       `json:"redeem_order_id,omitempty"`
	TransferID    string       `json:"transfer_id,omitempty"`
	PositionMode  string       `json:"position_mode,omitempty"`
	OrderID       string       `json:"order_id,omitempty"`
	ClientOid     string       `json:"client_oid,omitempty"`
	Steps         []StepRecord `json:"steps"`
}

// EnterPositionFromSavings redeems margin funds from flexible savings,
// moves them to the futures account and opens a position. The account's
// position mode is resolved from exchange configuration on every run so
// the order carries tradeSide exactly when hedge mode requires it.
func (o *Orchestrator) EnterPositionFromSavings(ctx context.Context, p EnterPositionParams) (*EnterPositionResult, error) {
	r := o.newRun("enter_position_from_savings")
	res := &EnterPositionResult{WorkflowID: r.id}
	defer func() { res.Steps = r.steps }()

	if p.Side != SideLong && p.Side != SideShort {
		return res, r.failed(StepPlaceOrder, &bitget.ValidationError{Op: "enter position", Reason: "side must be long or short"})
	}
	if !p.Amount.IsPositive() {
		return res, r.failed(StepRedeem, &bitget.ValidationError{Op: "enter position", Reason: "amount must be positive"})
	}
	if p.OrderType == "limit" && p.Price.IsZero() {
		return res, r.failed(StepPlaceOrder, &bitget.ValidationError{Op: "enter position", Reason: "price required for limit orders"})
	}
	marginCoin := p.MarginCoin
	if marginCoin == "" {
		marginCoin = "USDT"
	}

	r.started(StepRedeem)
	redeemID, err := o.earn.Redeem(ctx, marginCoin, p.Amount)
	if err != nil {
		return res, r.failed(StepRedeem, err)
	}
	res.RedeemOrderID = redeemID
	r.completed(StepRedeem, map[string]string{"redeem_order_id": redeemID})

	r.started(StepWaitSettlement)
	if err := o.waitSettlement(ctx, StepRedeem, func(ctx context.Context) (bool, error) {
		return o.spotAvailableAtLeast(ctx, marginCoin, p.Amount)
	}); err != nil {
		return res, r.failed(StepWaitSettlement, err)
	}
	r.completed(StepWaitSettlement, nil)

	r.started(StepTransfer)
	tr, err := o.spot.Transfer(ctx, spot.TransferParams{
		FromType: spot.AccountSpot,
		ToType:   spot.AccountUSDTFutures,
		Coin:     marginCoin,
		Amount:   p.Amount,
	})
	if err != nil {
		return res, r.failed(StepTransfer, err)
	}
	res.TransferID = tr.TransferID
	r.completed(StepTransfer, map[string]string{"transfer_id": tr.TransferID})

	r.started(StepWaitSettlement)
	if err := o.waitSettlement(ctx, StepTransfer, func(ctx context.Context) (bool, error) {
		return o.futuresAvailableAtLeast(ctx, marginCoin, p.Amount)
	}); err != nil {
		return res, r.failed(StepWaitSettlement, err)
	}
	r.completed(StepWaitSettlement, nil)

	r.started(StepResolveMode)
	mode, err := o.mix.PositionMode(ctx, p.Symbol, marginCoin)
	if err != nil {
		return res, r.failed(StepResolveMode, err)
	}
	res.PositionMode = mode
	r.completed(StepResolveMode, map[string]string{"position_mode": mode})

	r.started(StepConvertSize)
	var size decimal.Decimal
	if p.OrderType == "limit" {
		size = p.Amount.Div(p.Price)
	} else {
		size, err = o.mix.UsdtToBaseSize(ctx, p.Symbol, p.Amount)
		if err != nil {
			return res, r.failed(StepConvertSize, err)
		}
	}
	r.completed(StepConvertSize, map[string]string{"size": size.String()})

	clientOid := p.ClientOid
	if clientOid == "" {
		clientOid = uuid.NewString()
	}
	side := mix.SideBuy
	if p.Side == SideShort {
		side = mix.SideSell
	}
	tradeSide := ""
	if mode == mix.ModeHedge {
		tradeSide = mix.TradeSideOpen
	}

	r.started(StepPlaceOrder)
	ack, err := o.mix.PlaceOrder(ctx, mix.PlaceOrderParams{
		Symbol:     p.Symbol,
		MarginMode: p.MarginMode,
		MarginCoin: marginCoin,
		Side:       side,
		TradeSide:  tradeSide,
		OrderType:  p.OrderType,
		Size:       size,
		Price:      p.Price,
		ClientOid:  clientOid,
	})
	if err != nil {
		return res, r.failed(StepPlaceOrder, err)
	}
	res.OrderID = ack.OrderID
	res.ClientOid = ack.ClientOid
	r.completed(StepPlaceOrder, map[string]string{"order_id": ack.OrderID})

	r.record(res)
	return res, nil
}

// ExitPositionParams drives the futures-position-to-savings saga.
type ExitPositionParams struct {
	Symbol     string
	MarginCoin string
	Side       string          // side of the position being closed
	SizeBase   decimal.Decimal // base quantity to close
	OrderType  string
	Price      decimal.Decimal
	MarginMode string
	ClientOid  string
}

// ExitPositionResult names every identifier the saga produced. When no
// margin was freed within the settlement bound the sweep back to savings
// is skipped and SweepSkipped is set.
type ExitPositionResult struct {
	WorkflowID     string       `json:"workflow_id"`
	PositionMode   string       `json:"position_mode,omitempty"`
	CloseOrderID   string       `json:"close_order_id,omitempty"`
	CloseClientOid string       `json:"close_client_oid,omitempty"`
	TransferID     string       `json:"transfer_id,omitempty"`
	DepositOrderID string       `json:"deposit_order_id,omitempty"`
	SweepSkipped   bool         `json:"sweep_skipped,omitempty"`
	Steps          []StepRecord `json:"steps"`
}

// ExitPositionToSavings closes a futures position, waits for margin to be
// released, sweeps it to the spot account and deposits it into flexible
// savings. In hedge mode a long closes with side buy and tradeSide close;
// in one-way mode the order side is inverted and reduceOnly is set.
func (o *Orchestrator) ExitPositionToSavings(ctx context.Context, p ExitPositionParams) (*ExitPositionResult, error) {
	r := o.newRun("exit_position_to_savings")
	res := &ExitPositionResult{WorkflowID: r.id}
	defer func() { res.Steps = r.steps }()

	if p.Side != SideLong && p.Side != SideShort {
		return res, r.failed(StepPlaceOrder, &bitget.ValidationError{Op: "exit position", Reason: "side must be long or short"})
	}
	if !p.SizeBase.IsPositive() {
		return res, r.failed(StepPlaceOrder, &bitget.ValidationError{Op: "exit position", Reason: "size must be positive"})
	}
	marginCoin := p.MarginCoin
	if marginCoin == "" {
		marginCoin = "USDT"
	}

	r.started(StepResolveMode)
	mode, err := o.mix.PositionMode(ctx, p.Symbol, marginCoin)
	if err != nil {
		return res, r.failed(StepResolveMode, err)
	}
	res.PositionMode = mode
	r.completed(StepResolveMode, map[string]string{"position_mode": mode})

	side := mix.SideBuy
	tradeSide := ""
	reduceOnly := false
	if mode == mix.ModeHedge {
		// Hedge-mode close keeps the position's own side and signals
		// direction via tradeSide.
		if p.Side == SideShort {
			side = mix.SideSell
		}
		tradeSide = mix.TradeSideClose
	} else {
		// One-way close is the opposite side with reduceOnly.
		if p.Side == SideLong {
			side = mix.SideSell
		}
		reduceOnly = true
	}

	clientOid := p.ClientOid
	if clientOid == "" {
		clientOid = uuid.NewString()
	}

	r.started(StepPlaceOrder)
	ack, err := o.mix.PlaceOrder(ctx, mix.PlaceOrderParams{
		Symbol:     p.Symbol,
		MarginMode: p.MarginMode,
		MarginCoin: marginCoin,
		Side:       side,
		TradeSide:  tradeSide,
		OrderType:  p.OrderType,
		Size:       p.SizeBase,
		Price:      p.Price,
		ClientOid:  clientOid,
		ReduceOnly: reduceOnly,
	})
	if err != nil {
		return res, r.failed(StepPlaceOrder, err)
	}
	res.CloseOrderID = ack.OrderID
	res.CloseClientOid = ack.ClientOid
	r.completed(StepPlaceOrder, map[string]string{"close_order_id": ack.OrderID})

	var order mix.Order
	r.started(StepLookupOrder)
	if err := o.waitSettlement(ctx, StepLookupOrder, func(ctx context.Context) (bool, error) {
		order, err = o.mix.OrderDetail(ctx, p.Symbol, ack.OrderID, "")
		if err != nil {
			return false, err
		}
		return orderTerminal(order.Status), nil
	}); err != nil {
		return res, r.failed(StepLookupOrder, err)
	}
	r.completed(StepLookupOrder, map[string]string{"status": order.Status})

	// Freed margin shows up as available balance. No balance at the bound
	// is not an error: the position may have been fully consumed by fees
	// or losses, so the sweep is simply skipped.
	var available decimal.Decimal
	r.started(StepWaitSettlement)
	err = o.waitSettlement(ctx, StepWaitSettlement, func(ctx context.Context) (bool, error) {
		bal, err := o.mix.Accounts(ctx, marginCoin)
		if err != nil {
			return false, err
		}
		available, err = bal.AvailableDecimal()
		if err != nil {
			return false, err
		}
		return available.IsPositive(), nil
	})
	if err != nil {
		var timeout *bitget.SettlementTimeoutError
		if !errors.As(err, &timeout) {
			return res, r.failed(StepWaitSettlement, err)
		}
	}
	if !available.IsPositive() {
		res.SweepSkipped = true
		r.skipped(StepTransfer)
		r.skipped(StepSubscribe)
		r.record(res)
		return res, nil
	}
	r.completed(StepWaitSettlement, map[string]string{"available": available.String()})

	sweep := available.Truncate(8)

	r.started(StepTransfer)
	tr, err := o.spot.Transfer(ctx, spot.TransferParams{
		FromType: spot.AccountUSDTFutures,
		ToType:   spot.AccountSpot,
		Coin:     marginCoin,
		Amount:   sweep,
	})
	if err != nil {
		return res, r.failed(StepTransfer, err)
	}
	res.TransferID = tr.TransferID
	r.completed(StepTransfer, map[string]string{"transfer_id": tr.TransferID})

	r.started(StepWaitSettlement)
	if err := o.waitSettlement(ctx, StepTransfer, func(ctx context.Context) (bool, error) {
		return o.spotAvailableAtLeast(ctx, marginCoin, sweep)
	}); err != nil {
		return res, r.failed(StepWaitSettlement, err)
	}
	r.completed(StepWaitSettlement, nil)

	r.started(StepSubscribe)
	depositID, err := o.earn.Subscribe(ctx, marginCoin, sweep)
	if err != nil {
		return res, r.failed(StepSubscribe, err)
	}
	res.DepositOrderID = depositID
	r.completed(StepSubscribe, map[string]string{"deposit_order_id": depositID})

	r.record(res)
	return res, nil
}

func (o *Orchestrator) futuresAvailableAtLeast(ctx context.Context, coin string, want decimal.Decimal) (bool, error) {
	bal, err := o.mix.Accounts(ctx, coin)
	if err != nil {
		return false, err
	}
	avail, err := bal.AvailableDecimal()
	if err != nil {
		return false, err
	}
	return avail.GreaterThanOrEqual(want), nil
}
