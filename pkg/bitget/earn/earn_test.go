package earn

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
)

// fakeExec records calls and serves canned payloads keyed by path.
type fakeExec struct {
	responses map[string]json.RawMessage
	errs      map[string]error

	calls  []string
	params []map[string]string
	bodies []any
}

func (f *fakeExec) Execute(ctx context.Context, method, path string, params map[string]string, body any) (json.RawMessage, error) {
	f.calls = append(f.calls, path)
	f.params = append(f.params, params)
	f.bodies = append(f.bodies, body)
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	return f.responses[path], nil
}

func TestResolveFlexibleProduct(t *testing.T) {
	exec := &fakeExec{responses: map[string]json.RawMessage{
		productsPath: json.RawMessage(`[
			{"productId":"old","coin":"USDT","periodType":"flexible","status":"sold_out"},
			{"productId":"fixed1","coin":"USDT","periodType":"fixed","status":"in_progress"},
			{"productId":"p42","coin":"USDT","periodType":"flexible","status":"in_progress"}
		]`),
	}}
	svc := NewService(exec)

	got, err := svc.ResolveFlexibleProduct(context.Background(), "usdt")
	if err != nil {
		t.Fatalf("ResolveFlexibleProduct() error: %v", err)
	}
	if got != "p42" {
		t.Fatalf("product id = %q, want %q", got, "p42")
	}
	if exec.params[0]["coin"] != "USDT" {
		t.Fatalf("coin param = %q, want upper-cased USDT", exec.params[0]["coin"])
	}
}

func TestResolveFlexibleProductNoneActive(t *testing.T) {
	exec := &fakeExec{responses: map[string]json.RawMessage{
		productsPath: json.RawMessage(`[
			{"productId":"old","coin":"USDT","periodType":"flexible","status":"sold_out"}
		]`),
	}}
	svc := NewService(exec)

	_, err := svc.ResolveFlexibleProduct(context.Background(), "USDT")
	if !errors.Is(err, bitget.ErrNoActiveProduct) {
		t.Fatalf("error = %v, want ErrNoActiveProduct", err)
	}
}

func TestRedeemResolvesProductEveryCall(t *testing.T) {
	exec := &fakeExec{responses: map[string]json.RawMessage{
		productsPath: json.RawMessage(`[{"productId":"p1","coin":"USDT","periodType":"flexible","status":"in_progress"}]`),
		redeemPath:   json.RawMessage(`{"orderId":"r-1"}`),
	}}
	svc := NewService(exec)

	id, err := svc.Redeem(context.Background(), "USDT", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Redeem() error: %v", err)
	}
	if id != "r-1" {
		t.Fatalf("order id = %q, want r-1", id)
	}
	// Product ids rotate; the listing must precede every savings order.
	if len(exec.calls) != 2 || exec.calls[0] != productsPath || exec.calls[1] != redeemPath {
		t.Fatalf("calls = %v, want product resolution then redeem", exec.calls)
	}
	body, ok := exec.bodies[1].(map[string]string)
	if !ok {
		t.Fatalf("redeem body type = %T, want map[string]string", exec.bodies[1])
	}
	if body["productId"] != "p1" || body["amount"] != "10" || body["periodType"] != "flexible" {
		t.Fatalf("redeem body = %v", body)
	}
}

func TestSubscribeRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(&fakeExec{})
	_, err := svc.Subscribe(context.Background(), "USDT", decimal.Zero)
	var ve *bitget.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestFlexibleHoldAmount(t *testing.T) {
	exec := &fakeExec{responses: map[string]json.RawMessage{
		assetsPath: json.RawMessage(`{"resultList":[
			{"productId":"p1","productCoin":"BTC","holdAmount":"0.5"},
			{"productId":"p2","productCoin":"USDT","holdAmount":"123.45"}
		]}`),
	}}
	svc := NewService(exec)

	got, err := svc.FlexibleHoldAmount(context.Background(), "usdt")
	if err != nil {
		t.Fatalf("FlexibleHoldAmount() error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("hold amount = %s, want 123.45", got)
	}

	got, err = svc.FlexibleHoldAmount(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("FlexibleHoldAmount() error: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("hold amount for unheld coin = %s, want 0", got)
	}
}
