package metrics

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first scrape. tasks and categories are the
// billing task names and local index category names.
func InitializeMetrics(tasks, categories []string) {
	volumes := []string{"storage", "tiles", "database", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open", "read", "readdir"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, task := range tasks {
		for _, result := range []string{"success", "error", "panic"} {
			BillingTasksTotal.WithLabelValues(task, result)
		}
		BillingTaskDuration.WithLabelValues(task)
		BillingGateRejections.WithLabelValues(task)
	}

	for _, product := range []string{"full_version", "live_updates", "depth_contours", "contour_lines"} {
		BillingEntitlements.WithLabelValues(product)
	}

	for _, endpoint := range []string{"/subscription/register", "/subscription/purchased", "/api/subscriptions/active"} {
		BillingRequestsTotal.WithLabelValues(endpoint, "success")
		BillingRequestsTotal.WithLabelValues(endpoint, "error")
		BillingRequestDuration.WithLabelValues(endpoint)
	}

	for _, category := range categories {
		ScannerEntries.WithLabelValues(category)
	}
	for _, kind := range []string{"obf", "tiles", "srtm", "wiki", "voice"} {
		ScannerLocationErrors.WithLabelValues(kind)
	}
	for _, op := range []string{"create", "write", "remove", "rename", "chmod"} {
		ScannerWatcherEventsTotal.WithLabelValues(op)
	}

	for _, status := range []string{"success", "error", "not_found", "throttled"} {
		TilePreviewsTotal.WithLabelValues(status)
	}

	for _, event := range []string{"error", "items", "purchased", "show_progress", "dismiss_progress"} {
		WebsocketEventsTotal.WithLabelValues(event)
	}

	for _, result := range []string{"success", "failure"} {
		AuthAttemptsTotal.WithLabelValues(result)
	}

	for _, op := range []string{"get_setting", "set_setting", "delete_setting", "list_settings",
		"installed_indexes", "set_installed_index", "replace_installed_indexes", "delete_installed_index",
		"save_purchase", "list_purchases", "delete_purchase",
		"set_password", "validate_password", "create_session", "validate_session", "clean_expired_sessions", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, result := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(result)
	}
	for _, file := range []string{"main", "wal"} {
		DBSizeBytes.WithLabelValues(file)
	}
}
