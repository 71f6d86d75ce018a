package workflow

import (
	"context"
	"time"

	"github.com/betbot/earnbot/pkg/bitget"
)

// waitSettlement re-queries downstream state until check reports
// consistency, failing with SettlementTimeoutError once the bound elapses.
// Balances and order state are not instantly consistent after an order or
// transfer; a bounded poll replaces trusting a blind delay.
func (o *Orchestrator) waitSettlement(ctx context.Context, step string, check func(context.Context) (bool, error)) error {
	deadline := o.now().Add(o.settleTimeout)
	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !o.now().Before(deadline) {
			return &bitget.SettlementTimeoutError{
				Step:    step,
				Elapsed: o.settleTimeout.String(),
			}
		}
		if err := o.sleep(ctx, o.settleInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
