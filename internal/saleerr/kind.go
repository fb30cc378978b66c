package saleerr

import (
	"context"
	"errors"
)

// Kind returns a short tag for rendering err, most specific first.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPurchaseInFlight):
		return "IN_FLIGHT"
	case errors.Is(err, ErrStaleInputs):
		return "STALE"
	case errors.Is(err, ErrUserRejected):
		return "USER_REJECTED"
	case errors.Is(err, ErrAddressNotAContract):
		return "NOT_CONTRACT"
	case errors.Is(err, ErrTokenWithoutSaleCapability):
		return "NO_SALE"
	case errors.Is(err, ErrNotAToken):
		return "NOT_TOKEN"
	case errors.Is(err, ErrLimitsUnknown):
		return "LIMITS_UNKNOWN"
	case errors.Is(err, ErrOutOfBounds):
		var ob *OutOfBoundsError
		if errors.As(err, &ob) {
			return "OUT_OF_BOUNDS:" + string(ob.Bound)
		}
		return "OUT_OF_BOUNDS"
	case errors.Is(err, ErrPaymentCeiling):
		return "CEILING"
	case errors.Is(err, ErrSemanticsUnconfirmed):
		return "UNCONFIRMED"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrConfirmationFailed):
		return "CONFIRMATION_FAILED"
	case errors.Is(err, ErrSimulatedRevert):
		return "REVERT"
	case errors.Is(err, ErrProviderRejected):
		return "PROVIDER_REJECTED"
	case errors.Is(err, ErrGasEstimationUnsupported):
		return "GAS_UNSUPPORTED"
	case errors.Is(err, ErrUnknownChain):
		return "UNKNOWN_CHAIN"
	case errors.Is(err, ErrTransportExhausted):
		return "TRANSPORT"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CANCELLED"
	}
	return "ERROR"
}
