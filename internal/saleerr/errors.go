package saleerr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrTransportExhausted is returned when every endpoint of the pool failed.
	ErrTransportExhausted = errors.New("transport exhausted")

	// ErrAddressNotAContract means no endpoint reported bytecode at the address.
	ErrAddressNotAContract = errors.New("address is not a contract")

	// ErrNotAToken means no token accessor answered.
	ErrNotAToken = errors.New("contract is not a token")

	// ErrTokenWithoutSaleCapability means the contract is a token but exposes no payable purchase function.
	ErrTokenWithoutSaleCapability = errors.New("token without sale capability")

	// ErrSemanticsUnconfirmed means neither price candidate survived simulation and the user did not accept the guess.
	ErrSemanticsUnconfirmed = errors.New("price semantics unconfirmed")

	ErrOutOfBounds        = errors.New("quantity out of bounds")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSimulatedRevert    = errors.New("execution reverted")
	ErrProviderRejected   = errors.New("provider rejected request")
	ErrConfirmationFailed = errors.New("confirmation failed")

	// ErrLimitsUnknown means some sale limits could not be read and the user
	// did not accept them as unbounded.
	ErrLimitsUnknown = errors.New("sale limits unknown")

	// ErrGasEstimationUnsupported marks a purchase sent with the fixed fallback gas limit.
	ErrGasEstimationUnsupported = errors.New("gas estimation unsupported")

	// ErrPaymentCeiling is returned when the implied payment exceeds the configured ceiling.
	ErrPaymentCeiling = errors.New("payment exceeds ceiling")

	ErrUserRejected     = errors.New("user rejected request")
	ErrPurchaseInFlight = errors.New("purchase already in flight")
	ErrStaleInputs      = errors.New("inputs changed during purchase")
	ErrUnknownChain     = errors.New("chain unknown to catalog")
)

// ExhaustedError carries the last failure seen by the transport pool.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("transport exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrTransportExhausted }

// Bound names the limit a quantity violated.
type Bound string

const (
	BoundMin Bound = "min"
	BoundMax Bound = "max"
	BoundCap Bound = "cap"
)

// OutOfBoundsError reports a quantity (in base units) outside a sale limit.
type OutOfBoundsError struct {
	Bound     Bound
	Limit     *big.Int
	Requested *big.Int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("quantity out of bounds (%s): requested %s, limit %s", e.Bound, e.Requested, e.Limit)
}

func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// RevertError is a revert with an optional decoded reason. Raw is kept when
// the payload matched neither Error(string) nor Panic(uint256).
type RevertError struct {
	Reason  string
	Raw     []byte
	Decoded bool
}

func (e *RevertError) Error() string {
	switch {
	case e.Decoded:
		return "execution reverted: " + e.Reason
	case len(e.Raw) > 0:
		return "execution reverted (raw 0x" + hex.EncodeToString(e.Raw) + ")"
	case e.Reason != "":
		return "execution reverted: " + e.Reason
	}
	return "execution reverted"
}

func (e *RevertError) Is(target error) bool { return target == ErrSimulatedRevert }

// ProviderRejectedError is a provider refusal, e.g. HTTP 403 from an endpoint that wants an API key.
type ProviderRejectedError struct {
	HTTPStatus int
	Err        error
}

func (e *ProviderRejectedError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("provider rejected request (http %d): %v", e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("provider rejected request: %v", e.Err)
}

func (e *ProviderRejectedError) Unwrap() error { return e.Err }

func (e *ProviderRejectedError) Is(target error) bool { return target == ErrProviderRejected }
