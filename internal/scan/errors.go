package scan

import "errors"

var (
	// ErrScanInProgress is returned when a scan is requested while another runs.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrConfigurationMissing is returned for a whole-site scan without a base URL.
	ErrConfigurationMissing = errors.New("base url is not configured")
	// ErrNoURLs is returned for an explicit scan with an empty URL list.
	ErrNoURLs = errors.New("no urls to scan")
	// ErrInvalidInterval is returned when monitoring is started with an interval below one minute.
	ErrInvalidInterval = errors.New("monitoring interval must be at least 1 minute")
)
