package models

// CacheKey is the composite key of a bulk payload: one run, one model.
type CacheKey struct {
	RunID     string `json:"run_id"`
	ModelName string `json:"model_name"`
}

func (k CacheKey) String() string {
	return k.RunID + "/" + k.ModelName
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
