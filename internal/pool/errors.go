package pool

// Error is a named failure condition. Every validation failure in the pool
// maps to exactly one of the sentinels below, so callers and tests can
// assert on the condition with errors.Is.
type Error struct {
	// Stable condition name surfaced on the API
	Name string
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrZeroValue             = &Error{Name: "ZeroValue", msg: "amount must be greater than zero"}
	ErrAmountNotEnough       = &Error{Name: "AmountNotEnough", msg: "deposit too small: mints zero shares"}
	ErrNoLiquidity           = &Error{Name: "NoLiquidity", msg: "insufficient redeemable liquidity"}
	ErrDurationOutOfRange    = &Error{Name: "DurationOutOfRange", msg: "policy duration out of range"}
	ErrCoverageLimitExceeded = &Error{Name: "CoverageLimitExceeded", msg: "coverage exceeds per-policy limit"}
	ErrWrongPremium          = &Error{Name: "WrongPremium", msg: "paid value does not equal required premium"}
	ErrPolicyNotFound        = &Error{Name: "PolicyNotFound", msg: "policy does not exist"}
	ErrAlreadyResolved       = &Error{Name: "AlreadyResolved", msg: "policy is already resolved"}
	ErrPolicyNotExpired      = &Error{Name: "PolicyNotExpired", msg: "policy has not reached its end timestamp"}
	ErrInvalidBPS            = &Error{Name: "InvalidBPS", msg: "basis-point value must be in (0, 10000]"}
	ErrTransferFailed        = &Error{Name: "TransferFailed", msg: "value transfer failed"}
	ErrNotInsurancePool      = &Error{Name: "NotInsurancePool", msg: "caller is not the insurance pool"}
	ErrEnforcedPause         = &Error{Name: "EnforcedPause", msg: "pool is paused"}
	ErrExpectedPause         = &Error{Name: "ExpectedPause", msg: "pool is not paused"}
	ErrUnauthorized          = &Error{Name: "OwnableUnauthorizedAccount", msg: "caller is not the owner"}
	ErrZeroAmount            = &Error{Name: "ZeroAmount", msg: "amount must be greater than zero"}
)

// ErrorName returns the stable condition name for err, or "Internal" when
// the error is not one of the pool sentinels.
func ErrorName(err error) string {
	if pe, ok := err.(*Error); ok {
		return pe.Name
	}
	return "Internal"
}
