package collector

import (
	"context"
	"fmt"
	"time"

	"BandWatch/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchOHLC returns bars for pair at interval minutes, oldest first.
	// A zero since asks for the most recent bars the exchange will serve.
	FetchOHLC(ctx context.Context, pair string, interval int, since time.Time) ([]model.PricePoint, error)
	ListPairs(ctx context.Context) ([]string, error)
	Name() string
}

// FailureReason classifies why a fetch did not produce a series.
type FailureReason string

const (
	ReasonNetwork        FailureReason = "network"
	ReasonStatus         FailureReason = "status"
	ReasonUpstream       FailureReason = "upstream"
	ReasonDecode         FailureReason = "decode"
	ReasonUnavailable    FailureReason = "unavailable"
	ReasonInvalidRequest FailureReason = "invalid_request"
)

// FetchError is the failure side of a fetch. Callers inspect it with errors.As.
type FetchError struct {
	Reason FailureReason
	Pair   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Pair == "" {
		return fmt.Sprintf("fetch: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Pair, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
