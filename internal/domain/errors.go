package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the quote path. Callers match with errors.Is.
var (
	// ErrInvalidSymbol means the symbol failed format validation before any
	// upstream call was made.
	ErrInvalidSymbol = errors.New("invalid symbol format")

	// ErrRateLimited is advisory: the limiter had no token available.
	// The blocking path absorbs this by waiting.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCircuitOpen means the upstream is presumed down and the call was
	// rejected without touching the network.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrUpstream means retries were exhausted (or the payload was
	// malformed) and no cache fallback existed.
	ErrUpstream = errors.New("upstream market data unavailable")
)

// ValidationError reports an order that violates a static limit.
// Rule names the violated limit and is user-visible.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order validation failed (%s): %s", e.Rule, e.Detail)
}

// ComplianceError reports a compliance rejection such as a restricted symbol.
type ComplianceError struct {
	Rule   string
	Reason string
}

func (e *ComplianceError) Error() string {
	return fmt.Sprintf("compliance rejection (%s): %s", e.Rule, e.Reason)
}

// RejectionError reports an execution-time rejection (e.g. the broker
// refused the order). Rejected orders always carry a reason string.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "order rejected: " + e.Reason
}
