package server

import (
	"net/http"

	"CoverPool/internal/pool"
)

// statusFor maps the pool's named failure conditions to HTTP statuses.
func statusFor(err error) int {
	switch pool.ErrorName(err) {
	case "ZeroValue", "ZeroAmount", "AmountNotEnough", "DurationOutOfRange",
		"CoverageLimitExceeded", "WrongPremium", "InvalidBPS":
		return http.StatusBadRequest
	case "OwnableUnauthorizedAccount", "NotInsurancePool":
		return http.StatusForbidden
	case "PolicyNotFound":
		return http.StatusNotFound
	case "NoLiquidity", "AlreadyResolved", "PolicyNotExpired", "EnforcedPause", "ExpectedPause",
		"TransferFailed":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
