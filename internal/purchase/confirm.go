package purchase

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ligun0805/salekit/internal/chain"
	"github.com/ligun0805/salekit/internal/saleerr"
	"github.com/ligun0805/salekit/internal/transport"
)

func (p *Pipeline) confirm(ctx context.Context, a *attempt) (*Receipt, Stage, error) {
	chainID := a.profile.ChainID
	rc, err := p.waitReceipt(ctx, chainID, a.txHash)
	if err != nil {
		rev := p.postMortem(ctx, a, nil)
		if rev != nil {
			return nil, Failed, fmt.Errorf("%w: tx %s: %v (replay at latest: %w)", saleerr.ErrConfirmationFailed, a.txHash.Hex(), err, rev)
		}
		return nil, Failed, fmt.Errorf("%w: tx %s: %v", saleerr.ErrConfirmationFailed, a.txHash.Hex(), err)
	}

	rcpt := &Receipt{
		TxHash:    a.txHash,
		GasUsed:   rc.GasUsed,
		GasLimit:  a.gasLimit,
		Value:     new(big.Int).Set(a.res.Value),
		Semantics: a.res.Semantics,
	}
	if rc.BlockNumber != nil {
		rcpt.BlockNumber = rc.BlockNumber.Uint64()
	}

	if rc.Status == types.ReceiptStatusSuccessful {
		p.log.Info("purchase confirmed",
			zap.String("tx_hash", a.txHash.Hex()),
			zap.Uint64("block", rcpt.BlockNumber),
			zap.Uint64("gas_used", rc.GasUsed))
		if p.deps.Balances != nil {
			if _, err := p.deps.Balances.Get(ctx, a.account, chainID, true); err != nil {
				p.log.Debug("balance refresh after purchase failed", zap.Error(err))
			}
		}
		return rcpt, Succeeded, nil
	}

	rev := p.postMortem(ctx, a, rc.BlockNumber)
	if rev == nil {
		rev = &saleerr.RevertError{}
	}
	return rcpt, RevertedPostMortem, fmt.Errorf("%w: tx %s reverted in block %d: %w", saleerr.ErrConfirmationFailed, a.txHash.Hex(), rcpt.BlockNumber, rev)
}

// waitReceipt polls for the receipt until it appears or ConfirmTimeout passes.
func (p *Pipeline) waitReceipt(ctx context.Context, chainID uint64, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()
	var last error
	for {
		rc, err := transport.Read(ctx, p.deps.Pool, chainID, func(ctx context.Context, r chain.Reader) (*types.Receipt, error) {
			return r.TransactionReceipt(ctx, hash)
		})
		if err == nil && rc != nil {
			return rc, nil
		}
		if err != nil {
			last = err
			p.log.Debug("receipt poll failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}
		t := time.NewTimer(p.cfg.ConfirmPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			if last != nil {
				return nil, fmt.Errorf("no receipt after %s: %w", p.cfg.ConfirmTimeout, last)
			}
			return nil, fmt.Errorf("no receipt after %s: %w", p.cfg.ConfirmTimeout, ctx.Err())
		case <-t.C:
		}
	}
}

// postMortem replays the purchase once, at block (nil = latest), to recover
// the revert reason. It returns nil when the replay does not revert or could
// not be made.
func (p *Pipeline) postMortem(ctx context.Context, a *attempt, block *big.Int) *saleerr.RevertError {
	if ctx.Err() != nil {
		// the parent is gone; still give the replay a short window
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	msg := a.msg()
	_, err := transport.Read(ctx, p.deps.Pool, a.profile.ChainID, func(ctx context.Context, r chain.Reader) ([]byte, error) {
		out, err := r.CallContract(ctx, msg, block)
		if err != nil && chain.IsRevert(err) {
			return nil, transport.Permanent(err)
		}
		return out, err
	}, transport.MaxAttempts(1))
	if err == nil {
		return nil
	}
	if !chain.IsRevert(err) {
		p.log.Debug("post-mortem call failed", zap.String("tx_hash", a.txHash.Hex()), zap.Error(err))
		return nil
	}
	rev := revertFrom(err)
	p.log.Info("post-mortem", zap.String("tx_hash", a.txHash.Hex()), zap.String("reason", rev.Error()))
	return rev
}
