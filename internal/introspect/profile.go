package introspect

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractKind classifies an inspected address.
type ContractKind int

const (
	KindUnknown ContractKind = iota
	KindToken
	KindSale
)

func (k ContractKind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindSale:
		return "sale"
	}
	return "unknown"
}

// TokenInfo is what the token accessors returned.
type TokenInfo struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// Profile describes a sale contract. Amounts are base units; a nil limit was
// not exposed by any candidate getter.
type Profile struct {
	Address      common.Address
	ChainID      uint64
	Kind         ContractKind
	Token        *TokenInfo
	TokenAddress common.Address
	Receiver     common.Address

	UnitPrice   *big.Int
	MinPurchase *big.Int
	MaxPurchase *big.Int
	WalletCap   *big.Int

	Purchase    *PurchaseFunction
	ABI         *abi.ABI
	VerifiedABI bool
	// Accessors maps each resolved role to the getter that answered.
	Accessors map[Role]string
}

// LimitsKnown is false for a partial profile.
func (p *Profile) LimitsKnown() bool {
	return p.MinPurchase != nil && p.MaxPurchase != nil && p.WalletCap != nil
}

func (p *Profile) PriceKnown() bool { return p.UnitPrice != nil }

// Decimals of the sold token.
func (p *Profile) Decimals() uint8 {
	if p.Token == nil {
		return 0
	}
	return p.Token.Decimals
}
