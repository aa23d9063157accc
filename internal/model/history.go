package model

import "time"

// ScanHistoryEntry is the durable aggregate of the scans of a subject.
type ScanHistoryEntry struct {
	SubjectID string `json:"subject_id"`
	// LastScan is the time of the last successful scan.
	LastScan time.Time `json:"last_scan"`
	// TotalScans counts successful scans.
	TotalScans int `json:"total_scans"`
	// TotalAnomalies is the sum of anomalies found by all the successful scans.
	TotalAnomalies int `json:"total_anomalies"`
	// AnomaliesFound is the value of the latest successful scan.
	AnomaliesFound int `json:"anomalies_found"`
	// FailedScans counts failed attempts, they don't move the success counters.
	FailedScans int        `json:"failed_scans,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}
