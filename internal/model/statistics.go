package model

import "time"

// Statistics is the aggregated anomaly statistics snapshot of the back office.
type Statistics struct {
	TotalAnomalies   int            `json:"total_anomalies"`
	OpenAnomalies    int            `json:"open_anomalies"`
	ScannedModels    int            `json:"scanned_models"`
	AnomaliesByModel map[string]int `json:"anomalies_by_model,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at"`
}
