package coordinator

import (
	"fmt"

	"github.com/pario-ai/evalview/pkg/models"
)

// StaleReferenceError reports that a cache entry was invalidated while a
// fetch for it was in flight, and a retry was superseded as well.
type StaleReferenceError struct {
	Key models.CacheKey
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("cache entry %s was invalidated while loading", e.Key)
}
