// Package chain provides typed Ethereum JSON-RPC reads over any Caller, so the
// same code runs against public endpoints and the wallet provider.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Caller is the raw JSON-RPC surface. *rpc.Client satisfies it.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Reader wraps a Caller with typed helpers.
type Reader struct {
	c Caller
}

func NewReader(c Caller) Reader { return Reader{c: c} }

// Caller exposes the underlying transport.
func (r Reader) Caller() Caller { return r.c }

func (r Reader) ChainID(ctx context.Context) (uint64, error) {
	var res hexutil.Uint64
	if err := r.c.CallContext(ctx, &res, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(res), nil
}

func (r Reader) BlockNumber(ctx context.Context) (uint64, error) {
	var res hexutil.Uint64
	err := r.c.CallContext(ctx, &res, "eth_blockNumber")
	return uint64(res), err
}

func (r Reader) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	var res hexutil.Big
	if err := r.c.CallContext(ctx, &res, "eth_getBalance", account, blockArg(block)); err != nil {
		return nil, err
	}
	return (*big.Int)(&res), nil
}

func (r Reader) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	var res hexutil.Bytes
	err := r.c.CallContext(ctx, &res, "eth_getCode", account, blockArg(block))
	return res, err
}

// CallContract executes eth_call. block nil means latest.
func (r Reader) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	var res hexutil.Bytes
	if err := r.c.CallContext(ctx, &res, "eth_call", CallArg(msg), blockArg(block)); err != nil {
		return nil, err
	}
	return res, nil
}

func (r Reader) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var res hexutil.Uint64
	if err := r.c.CallContext(ctx, &res, "eth_estimateGas", CallArg(msg)); err != nil {
		return 0, err
	}
	return uint64(res), nil
}

// TransactionReceipt returns (nil, nil) while the transaction is pending.
func (r Reader) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var rc *types.Receipt
	if err := r.c.CallContext(ctx, &rc, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	return rc, nil
}

func (r Reader) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var res hexutil.Uint64
	err := r.c.CallContext(ctx, &res, "eth_getTransactionCount", account, "pending")
	return uint64(res), err
}

// SuggestTipCap reads eth_maxPriorityFeePerGas.
func (r Reader) SuggestTipCap(ctx context.Context) (*big.Int, error) {
	var res hexutil.Big
	if err := r.c.CallContext(ctx, &res, "eth_maxPriorityFeePerGas"); err != nil {
		return nil, err
	}
	return (*big.Int)(&res), nil
}

// LatestBaseFee returns the base fee of the head block.
func (r Reader) LatestBaseFee(ctx context.Context) (*big.Int, error) {
	var head *types.Header
	if err := r.c.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, err
	}
	if head == nil {
		return nil, ethereum.NotFound
	}
	if head.BaseFee == nil {
		return nil, errors.New("no baseFee (pre-1559?)")
	}
	return new(big.Int).Set(head.BaseFee), nil
}

// CallArg encodes msg the way ethclient does for eth_call/eth_estimateGas.
func CallArg(msg ethereum.CallMsg) interface{} {
	arg := map[string]interface{}{
		"from": msg.From,
		"to":   msg.To,
	}
	if len(msg.Data) > 0 {
		arg["input"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas != 0 {
		arg["gas"] = hexutil.Uint64(msg.Gas)
	}
	if msg.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(msg.GasPrice)
	}
	if msg.GasFeeCap != nil {
		arg["maxFeePerGas"] = (*hexutil.Big)(msg.GasFeeCap)
	}
	if msg.GasTipCap != nil {
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(msg.GasTipCap)
	}
	return arg
}

func blockArg(n *big.Int) string {
	if n == nil {
		return "latest"
	}
	return hexutil.EncodeBig(n)
}
