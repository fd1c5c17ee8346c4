package models

import "time"

// LedgerEntry records one metered call against the provider.
type LedgerEntry struct {
	ID              string    `json:"id"`
	Endpoint        string    `json:"endpoint"`
	Category        string    `json:"category"`
	Cost            int       `json:"cost"`
	TotalUsageAfter int       `json:"total_usage_after"`
	RemainingAfter  int       `json:"remaining_after"`
	CreatedAt       time.Time `json:"created_at"`
}

// LedgerSummary aggregates ledger rows by endpoint and category.
type LedgerSummary struct {
	Endpoint string `json:"endpoint"`
	Category string `json:"category"`
	Calls    int    `json:"calls"`
	Cost     int    `json:"cost"`
}

// HourlyUsage is the number of metered calls in one UTC hour.
type HourlyUsage struct {
	Hour  time.Time `json:"hour"`
	Calls int       `json:"calls"`
}
