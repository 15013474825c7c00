package shared

const (
	ProjectID = "fitglue-heatmap" // Can be overridden by env var in main if needed

	TopicRepairResults = "topic-repair-results"

	CollectionCursors           = "cursors"
	CollectionHeatmapSpecs      = "heatmap_specs"
	CollectionHeatmapIndex      = "heatmap_index"
	CollectionSwitches          = "switches"
	CollectionProcessedMessages = "processed_messages"
	CollectionDropboxMessages   = "dropbox_messages"
	CollectionDownloadLinks     = "download_links"

	DocStorageCursor = "storage_cursor"
	DocStravaSwitch  = "strava_upload"

	// Storage layout inside the main bucket
	DefaultOrigFitFolder = "activities"
	FolderCleanCSV       = "csv_clean"
	FolderCleanFIT       = "fit_clean"
	FolderGPX            = "gpx"
	FolderHeatmap        = "heatmap"
	FolderFragments      = "heatmap/fragments"
)

// Runtime switch values stored in switches/strava_upload.
const (
	SwitchProd    = "prod"
	SwitchTesting = "testing"
)
