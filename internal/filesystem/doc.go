/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

# Purpose

Application storage is frequently an SD card, a FUSE mount or an NFS export. This package
wraps os.Stat, os.Open and os.ReadDir with retry logic for ESTALE (stale file handle)
errors, which appear when a mount is refreshed underneath a running scan.

# Usage

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())

Custom retry configuration:

	config := filesystem.RetryConfig{
	    MaxRetries:     5,
	    InitialBackoff: 100 * time.Millisecond,
	    MaxBackoff:     1 * time.Second,
	}

# Retry Behavior

Defaults: 3 retries, 50ms initial backoff doubling up to 500ms. Only ESTALE triggers a
retry; every other error is returned immediately.

# Metrics

Retry outcomes are reported through an Observer (see SetObserver). The metrics package
provides the Prometheus implementation; with no observer installed nothing is recorded.
Volume labels come from a VolumeResolver mapping storage subdirectories to names.
*/
package filesystem
