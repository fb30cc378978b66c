package introspect

// Role is what a getter means to the tester, independent of what the
// contract author called it.
type Role string

const (
	RoleName        Role = "name"
	RoleSymbol      Role = "symbol"
	RoleDecimals    Role = "decimals"
	RoleTotalSupply Role = "totalSupply"

	RoleToken       Role = "token"
	RoleReceiver    Role = "receiver"
	RolePrice       Role = "price"
	RoleMinPurchase Role = "minPurchase"
	RoleMaxPurchase Role = "maxPurchase"
	RoleWalletCap   Role = "walletCap"
)

// ValueKind is the decoded shape a role must have.
type ValueKind int

const (
	KindUint ValueKind = iota
	KindAddress
	KindString
	KindDecimals
)

// Accessor lists the getter names tried for a role, in order.
type Accessor struct {
	Role       Role
	Candidates []string
	Kind       ValueKind
	// NonZero rejects a zero uint as implausible.
	NonZero bool
}

// TokenAccessors identify an ERC-20 style token.
var TokenAccessors = []Accessor{
	{Role: RoleName, Candidates: []string{"name"}, Kind: KindString},
	{Role: RoleSymbol, Candidates: []string{"symbol"}, Kind: KindString},
	{Role: RoleDecimals, Candidates: []string{"decimals"}, Kind: KindDecimals},
	{Role: RoleTotalSupply, Candidates: []string{"totalSupply"}, Kind: KindUint},
}

// SaleAccessors describe a sale contract.
var SaleAccessors = []Accessor{
	{Role: RoleToken, Candidates: []string{"saleToken", "token", "getToken", "tokenAddress"}, Kind: KindAddress},
	{Role: RoleReceiver, Candidates: []string{"receiver", "wallet", "beneficiary", "owner"}, Kind: KindAddress},
	{Role: RolePrice, Candidates: []string{"bnbPrice", "price", "getPrice", "tokenPrice", "pricePerToken"}, Kind: KindUint, NonZero: true},
	{Role: RoleMinPurchase, Candidates: []string{"minPurchase", "minimumPurchase", "minAmount"}, Kind: KindUint},
	{Role: RoleMaxPurchase, Candidates: []string{"maxPurchase", "maximumPurchase", "maxAmount"}, Kind: KindUint, NonZero: true},
	{Role: RoleWalletCap, Candidates: []string{"perWalletCap", "maxPerWallet", "walletCap"}, Kind: KindUint, NonZero: true},
}

// PurchaseNames are the payable entry points recognised, in priority order.
var PurchaseNames = []string{"buy", "purchase", "buyTokens", "buyToken"}

// maxDecimals is the largest exponent for which 10^d fits in a uint256.
const maxDecimals = 77
