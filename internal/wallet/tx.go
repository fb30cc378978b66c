package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/ligun0805/salekit/internal/chain"
)

// Default tip when the node does not answer eth_maxPriorityFeePerGas.
const defaultTipGwei = 1

// Build EIP-1559 transaction.
func buildDynamicTx(chainID *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	})
}

// Build legacy transaction for chains without a base fee.
func buildLegacyTx(nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		Gas:      gasLimit,
		GasPrice: new(big.Int).Set(gasPrice),
		To:       to,
		Value:    new(big.Int).Set(value),
		Data:     data,
	})
}

// Sign transaction with latest signer for given chain ID.
func signTx(tx *types.Transaction, chainID *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), prv)
}

func gweiToWei(g int64) *big.Int {
	x := new(big.Int).SetInt64(g)
	return x.Mul(x, big.NewInt(1_000_000_000))
}

// Parse hex ECDSA private key (with / without 0x).
func hexToECDSAPriv(s string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(h) == 0 {
		return nil, errors.New("empty private key")
	}
	return gethcrypto.HexToECDSA(h)
}

// fees picks tip and fee cap: tip from the node, cap = 2*baseFee + tip.
// A nil cap means the chain has no base fee and gasPrice should be used.
func fees(ctx context.Context, r chain.Reader) (tip, feeCap *big.Int) {
	base, err := r.LatestBaseFee(ctx)
	if err != nil {
		return nil, nil
	}
	tip, err = r.SuggestTipCap(ctx)
	if err != nil || tip == nil {
		tip = gweiToWei(defaultTipGwei)
	}
	feeCap = new(big.Int).Mul(base, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return tip, feeCap
}

func gasPrice(ctx context.Context, c chain.Caller) (*big.Int, error) {
	var res hexutil.Big
	if err := c.CallContext(ctx, &res, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return (*big.Int)(&res), nil
}

func parseBig(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return new(big.Int), nil
	}
	return hexutil.DecodeBig(s)
}
