package exporter

import "time"

// Config captures the parameters for reaching the report and exporting it.
type Config struct {
	// URL is the public report page.
	URL string
	// Tab is the visible label of the report tab holding the export visual.
	Tab string
	// UserAgent is sent on probe and browser traffic.
	UserAgent string
	// ProbeTimeout bounds the reachability probe.
	ProbeTimeout time.Duration
	// LoadTimeout bounds waiting for the report frame to render.
	LoadTimeout time.Duration
	// ExportTimeout bounds the whole export interaction including download.
	ExportTimeout time.Duration
	// DownloadDir receives the exported workbook.
	DownloadDir string
	// DownloadPollInterval is how often the download directory is scanned
	// while waiting for the export to land.
	DownloadPollInterval time.Duration
}
