package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// CacheKey derives the cache key for a search. Parameter order does not
// matter: keys are sorted before hashing and empty values are dropped.
func CacheKey(filters FilterRequest, page, perPage int) string {
	normalized := filters.normalized()
	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v, err := json.Marshal(normalized[k])
		if err != nil {
			v = []byte(fmt.Sprint(normalized[k]))
		}
		fmt.Fprintf(h, "%q=%s;", k, v)
	}
	fmt.Fprintf(h, "page=%d;per_page=%d", page, perPage)
	return hex.EncodeToString(h.Sum(nil))
}
