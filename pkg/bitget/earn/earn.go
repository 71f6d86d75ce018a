// Package earn covers Bitget flexible savings: product resolution,
// subscribe, redeem and asset queries.
package earn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/earnbot/pkg/bitget"
)

const (
	productsPath  = "/api/v2/earn/savings/product"
	subscribePath = "/api/v2/earn/savings/subscribe"
	redeemPath    = "/api/v2/earn/savings/redeem"
	assetsPath    = "/api/v2/earn/savings/assets"

	periodFlexible   = "flexible"
	statusInProgress = "in_progress"
)

// Service exposes savings operations on one shared request core.
type Service struct {
	exec bitget.Executor
}

// NewService creates the savings capability.
func NewService(exec bitget.Executor) *Service {
	return &Service{exec: exec}
}

// Product is one savings product listing entry.
type Product struct {
	ProductID  string `json:"productId"`
	Coin       string `json:"coin"`
	PeriodType string `json:"periodType"`
	Status     string `json:"status"`
}

// ResolveFlexibleProduct finds the currently active flexible product id for
// a coin. The exchange rotates product ids when one is exhausted, so the id
// must be re-resolved before every subscribe/redeem and never cached.
func (s *Service) ResolveFlexibleProduct(ctx context.Context, coin string) (string, error) {
	params := map[string]string{
		"coin":   strings.ToUpper(coin),
		"filter": "available_and_held",
	}
	data, err := s.exec.Execute(ctx, "GET", productsPath, params, nil)
	if err != nil {
		return "", err
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return "", errors.Wrap(err, "decode savings products")
	}
	for _, p := range products {
		if p.PeriodType == periodFlexible && p.Status == statusInProgress {
			return p.ProductID, nil
		}
	}
	return "", fmt.Errorf("%w for %s", bitget.ErrNoActiveProduct, strings.ToUpper(coin))
}

type savingsOrder struct {
	OrderID string `json:"orderId"`
}

// Subscribe moves amount of coin into flexible savings, returning the
// savings order id.
func (s *Service) Subscribe(ctx context.Context, coin string, amount decimal.Decimal) (string, error) {
	return s.savingsOrder(ctx, subscribePath, coin, amount)
}

// Redeem moves amount of coin out of flexible savings, returning the
// savings order id. Redemption settles asynchronously: the spot balance is
// not guaranteed to reflect the funds when this returns.
func (s *Service) Redeem(ctx context.Context, coin string, amount decimal.Decimal) (string, error) {
	return s.savingsOrder(ctx, redeemPath, coin, amount)
}

func (s *Service) savingsOrder(ctx context.Context, path, coin string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", &bitget.ValidationError{Op: "savings order", Reason: "amount must be positive"}
	}
	productID, err := s.ResolveFlexibleProduct(ctx, coin)
	if err != nil {
		return "", err
	}
	body := map[string]string{
		"periodType": periodFlexible,
		"productId":  productID,
		"amount":     amount.String(),
	}
	data, err := s.exec.Execute(ctx, "POST", path, nil, body)
	if err != nil {
		return "", err
	}
	var order savingsOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return "", errors.Wrap(err, "decode savings order")
	}
	return order.OrderID, nil
}

// AssetsQuery filters a savings assets request. Zero values are omitted.
type AssetsQuery struct {
	PeriodType string
	StartTime  string
	EndTime    string
	Limit      string
	IDLessThan string
}

// Asset is one savings holding.
type Asset struct {
	ProductID   string `json:"productId"`
	ProductCoin string `json:"productCoin"`
	HoldAmount  string `json:"holdAmount"`
}

type assetsResult struct {
	ResultList []Asset `json:"resultList"`
}

// Assets lists savings holdings matching the query.
func (s *Service) Assets(ctx context.Context, q AssetsQuery) ([]Asset, error) {
	if q.PeriodType == "" {
		return nil, &bitget.ValidationError{Op: "savings assets", Reason: "periodType is required"}
	}
	params := map[string]string{"periodType": q.PeriodType}
	if q.StartTime != "" {
		params["startTime"] = q.StartTime
	}
	if q.EndTime != "" {
		params["endTime"] = q.EndTime
	}
	if q.Limit != "" {
		params["limit"] = q.Limit
	}
	if q.IDLessThan != "" {
		params["idLessThan"] = q.IDLessThan
	}
	data, err := s.exec.Execute(ctx, "GET", assetsPath, params, nil)
	if err != nil {
		return nil, err
	}
	var res assetsResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errors.Wrap(err, "decode savings assets")
	}
	return res.ResultList, nil
}

// FlexibleHoldAmount returns the flexible savings balance of a coin, zero
// when the coin is not held.
func (s *Service) FlexibleHoldAmount(ctx context.Context, coin string) (decimal.Decimal, error) {
	assets, err := s.Assets(ctx, AssetsQuery{PeriodType: periodFlexible})
	if err != nil {
		return decimal.Zero, err
	}
	coin = strings.ToUpper(coin)
	for _, a := range assets {
		if strings.ToUpper(a.ProductCoin) == coin {
			amt, err := decimal.NewFromString(a.HoldAmount)
			if err != nil {
				return decimal.Zero, errors.Wrapf(err, "holdAmount for %s", coin)
			}
			return amt, nil
		}
	}
	return decimal.Zero, nil
}
