package core

import (
	"context"
	"fmt"
	"math/big"
)

// maxUint256 is the largest token amount the ledger can represent.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Pubdata carries the data-publication part of gas accounting.
type Pubdata struct {
	GasPerPubdataByte uint64
	Bytes             uint64
}

// ExchangePolicy converts a native-currency cost (wei) to a token amount.
// Implementations must be monotonic in weiCost.
type ExchangePolicy interface {
	TokenAmount(ctx context.Context, weiCost *big.Int) (*big.Int, error)
}

// RateSource supplies an exchange rate, typically from a price oracle.
type RateSource interface {
	Rate(ctx context.Context) (*big.Int, error)
}

// FixedRate converts wei to tokens as weiCost * Numerator / Denominator, rounding down.
type FixedRate struct {
	Numerator   *big.Int
	Denominator *big.Int
}

func (r FixedRate) TokenAmount(_ context.Context, weiCost *big.Int) (*big.Int, error) {
	if r.Numerator == nil || r.Numerator.Sign() < 0 {
		return nil, fmt.Errorf("%w: rate numerator must be non-negative", ErrInvalidQuote)
	}
	if r.Denominator == nil || r.Denominator.Sign() <= 0 {
		return nil, fmt.Errorf("%w: rate denominator must be positive", ErrInvalidQuote)
	}
	return mulDiv(weiCost, r.Numerator, r.Denominator)
}

// FlatFee charges the same amount whatever the gas cost.
type FlatFee struct {
	Amount *big.Int
}

func (f FlatFee) TokenAmount(_ context.Context, _ *big.Int) (*big.Int, error) {
	if f.Amount == nil || f.Amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: flat fee must be non-negative", ErrInvalidQuote)
	}
	if f.Amount.Cmp(maxUint256) > 0 {
		return nil, ErrQuoteOverflow
	}
	return new(big.Int).Set(f.Amount), nil
}

// OracleRate converts wei to tokens as weiCost * rate / Scale, with rate read from Source.
type OracleRate struct {
	Source RateSource
	Scale  *big.Int
}

func (o OracleRate) TokenAmount(ctx context.Context, weiCost *big.Int) (*big.Int, error) {
	if o.Source == nil {
		return nil, fmt.Errorf("%w: oracle rate source is not set", ErrInvalidQuote)
	}
	if o.Scale == nil || o.Scale.Sign() <= 0 {
		return nil, fmt.Errorf("%w: oracle scale must be positive", ErrInvalidQuote)
	}
	rate, err := o.Source.Rate(ctx)
	if err != nil {
		return nil, err
	}
	if rate.Sign() < 0 {
		return nil, fmt.Errorf("%w: oracle rate must be non-negative", ErrInvalidQuote)
	}
	return mulDiv(weiCost, rate, o.Scale)
}

// Quoter derives the token amount owed for a transaction.
type Quoter struct {
	Policy ExchangePolicy
}

// NewQuoter creates a quoter with the given exchange policy.
func NewQuoter(policy ExchangePolicy) *Quoter {
	return &Quoter{Policy: policy}
}

// Quote returns the token amount owed for gas units at gasPrice, plus pubdata gas.
func (q *Quoter) Quote(ctx context.Context, gasPrice *big.Int, gas uint64, pubdata Pubdata) (*big.Int, error) {

	// Verify the quote parameters
	if q.Policy == nil {
		return nil, fmt.Errorf("%w: exchange policy is not set", ErrInvalidQuote)
	}
	if gasPrice == nil || gasPrice.Sign() < 0 {
		return nil, fmt.Errorf("%w: gas price must be non-negative", ErrInvalidQuote)
	}

	// Native cost = gas price * total gas
	weiCost := new(big.Int).Mul(gasPrice, totalGas(gas, pubdata))
	if weiCost.Cmp(maxUint256) > 0 {
		return nil, ErrQuoteOverflow
	}

	// Convert to token units under the configured policy
	amount, err := q.Policy.TokenAmount(ctx, weiCost)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(maxUint256) > 0 {
		return nil, ErrQuoteOverflow
	}

	return amount, nil
}

// totalGas is execution gas plus gas per pubdata byte * pubdata bytes.
func totalGas(gas uint64, pubdata Pubdata) *big.Int {
	total := new(big.Int).SetUint64(pubdata.GasPerPubdataByte)
	total.Mul(total, new(big.Int).SetUint64(pubdata.Bytes))
	return total.Add(total, new(big.Int).SetUint64(gas))
}

// mulDiv returns x * num / den rounded down, failing if the product leaves uint256 range.
func mulDiv(x, num, den *big.Int) (*big.Int, error) {
	product := new(big.Int).Mul(x, num)
	if product.Cmp(maxUint256) > 0 {
		return nil, ErrQuoteOverflow
	}
	return product.Quo(product, den), nil
}
