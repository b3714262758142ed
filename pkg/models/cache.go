package models

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries  int64 `json:"entries"`
	Counters int64 `json:"counters"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}
