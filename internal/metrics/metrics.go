package metrics

import (
	"expvar"
)

var (
	// RefreshesTotal counts store refreshes issued
	RefreshesTotal = expvar.NewInt("vault_refreshes_total")

	// RefreshesFailed counts refreshes that kept the prior snapshot
	RefreshesFailed = expvar.NewInt("vault_refreshes_failed")

	// StaleDiscarded counts responses dropped for being out of order or out of scope
	StaleDiscarded = expvar.NewInt("vault_stale_discarded")

	// UploadsTotal counts successful uploads
	UploadsTotal = expvar.NewInt("vault_uploads_total")

	// UploadsFailed counts uploads rejected by the gateway
	UploadsFailed = expvar.NewInt("vault_uploads_failed")

	// DownloadsTotal counts saved downloads
	DownloadsTotal = expvar.NewInt("vault_downloads_total")

	// DownloadsFailed counts failed downloads
	DownloadsFailed = expvar.NewInt("vault_downloads_failed")

	// SearchesTotal counts searches issued
	SearchesTotal = expvar.NewInt("vault_searches_total")

	// TagsCreated counts tags created by reconciliation
	TagsCreated = expvar.NewInt("vault_tags_created")
)
