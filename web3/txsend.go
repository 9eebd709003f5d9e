package web3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/types"
	"github.com/vocdoni/maci-voter/web3/rpc"
)

const defaultReceiptPollInterval = time.Second

// ErrTxFailed is returned by WaitForReceipt when the transaction was mined
// with a failed status.
var ErrTxFailed = errors.New("transaction reverted on chain")

// SendTransaction signs and sends an EIP-1559 transaction calling to with
// data. Gas is estimated first so that reverting calls fail before anything
// is broadcast.
func (c *Contracts) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, types.NewBoundaryError(types.CodeWallet, "send transaction", fmt.Errorf("no signer defined"))
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	from := c.signer.Address()
	gas, err := c.cli.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	fees, err := c.SuggestInitialFees(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("initial fees: %w", err)
	}
	nonce, err := c.cli.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	chainID := c.cli.ChainID()
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: fees.TipCap,
		GasFeeCap: fees.FeeCap,
		Gas:       withGasMargin(gas),
		To:        &to,
		Data:      data,
	})
	signed, err := c.signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, types.NewBoundaryError(types.CodeWallet, "sign transaction", err)
	}
	if err := c.cli.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	log.Infow("transaction sent",
		"hash", signed.Hash().Hex(),
		"to", to.Hex(),
		"nonce", nonce,
		"gas", signed.Gas())
	return signed.Hash(), nil
}

// WaitForReceipt polls for the receipt of hash until it is mined or ctx
// ends. A failed status yields ErrTxFailed along with the receipt.
func (c *Contracts) WaitForReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	interval := c.ReceiptPollInterval
	if interval <= 0 {
		interval = defaultReceiptPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := c.cli.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTxFailed, hash.Hex())
			}
			log.Debugw("transaction mined", "hash", hash.Hex(), "block", receipt.BlockNumber.Uint64())
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && rpc.IsPermanentError(err):
			return nil, fmt.Errorf("receipt of %s: %w", hash.Hex(), err)
		case err != nil && !errors.Is(err, ethereum.NotFound):
			log.Debugw("receipt not available yet", "hash", hash.Hex(), "error", err.Error())
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, types.NewBoundaryError(types.CodeTimeout, "wait receipt "+hash.Hex(), ctx.Err())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
