package web3

import (
	"context"
	"fmt"
	"math/big"
)

// FeeCaps are the EIP-1559 fee caps of a transaction.
type FeeCaps struct {
	TipCap *big.Int // maxPriorityFeePerGas
	FeeCap *big.Int // maxFeePerGas
}

const (
	// gas limit margin ~+20% over the estimate
	gasMarginNum = int64(12)
	gasMarginDen = int64(10)
)

// SuggestInitialFees returns FeeCaps built from on-chain conditions:
// feeCap = 2*baseFee + tip.
func (c *Contracts) SuggestInitialFees(ctx context.Context) (FeeCaps, error) {
	var fees FeeCaps

	tip, err := c.cli.SuggestGasTipCap(ctx)
	if err != nil {
		return fees, fmt.Errorf("suggest tip: %w", err)
	}
	h, err := c.cli.HeaderByNumber(ctx, nil)
	if err != nil {
		return fees, fmt.Errorf("header by number: %w", err)
	}
	if h.BaseFee == nil {
		return fees, fmt.Errorf("no base fee in latest header (pre-london?)")
	}

	feeCap := new(big.Int).Mul(h.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)

	fees.TipCap = tip
	fees.FeeCap = feeCap
	return fees, nil
}

func mulFrac(x *big.Int, num, den int64) *big.Int {
	if x == nil {
		return nil
	}
	xx := new(big.Int).Set(x)
	xx.Mul(xx, big.NewInt(num))
	xx.Div(xx, big.NewInt(den))
	return xx
}

func withGasMargin(gas uint64) uint64 {
	return mulFrac(new(big.Int).SetUint64(gas), gasMarginNum, gasMarginDen).Uint64()
}
