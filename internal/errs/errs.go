// Package errs defines sentinel errors shared across packages.
package errs

import "errors"

var (
	// ErrNoData means no sample has been recorded for the plugin yet.
	ErrNoData = errors.New("no data for plugin")

	// ErrFetchFailed means the plugin portal could not be fetched or parsed.
	ErrFetchFailed = errors.New("fetch failed")
)
