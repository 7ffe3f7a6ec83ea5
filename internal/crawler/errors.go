package crawler

import "errors"

var (
	// ErrInvalidSeed is returned when the seed URL cannot start a crawl.
	ErrInvalidSeed = errors.New("invalid seed URL")

	// ErrMalformedLink is carried by a Malformed outcome.
	ErrMalformedLink = errors.New("malformed link")

	// ErrInvalidPattern is returned when an ignore or follow pattern does not compile.
	ErrInvalidPattern = errors.New("invalid URL pattern")

	// ErrLedgerInvariant aborts a run when the ledger rejects a transition.
	// It wraps ledger.ErrUnknownURL or ledger.ErrAlreadyVisited.
	ErrLedgerInvariant = errors.New("ledger invariant violated")
)
