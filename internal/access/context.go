package access

import (
	"sort"
	"strings"

	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/google/uuid"
)

// RequestContext scopes computed matrices to one incoming request.
// Create a fresh one per request; never share it between requests.
// It is not safe for concurrent use.
type RequestContext struct {
	ID string

	cache   map[string]*result
	fetches int
}

// NewRequestContext creates an empty request context. An empty id gets a
// generated UUID.
func NewRequestContext(id string) *RequestContext {
	if id == "" {
		id = uuid.New().String()
	}
	return &RequestContext{
		ID:    id,
		cache: make(map[string]*result),
	}
}

// Fetches returns how many times the completion source was queried.
func (rc *RequestContext) Fetches() int {
	return rc.fetches
}

func (rc *RequestContext) lookup(key string) (*result, bool) {
	res, ok := rc.cache[key]
	return res, ok
}

func (rc *RequestContext) store(key string, res *result) {
	rc.cache[key] = res
}

// input is what one build fetched. It is walked again, never refetched.
type input struct {
	records   []string
	data      map[string]*clinical.RecordData
	seeds     map[string]clinical.AccessMatrix // conflict resolver denials
	sourceErr error
}

// result is one cached build.
type result struct {
	input  *input
	matrix clinical.AccessMatrix
	gated  clinical.AccessMatrix // denials produced by the chain, not the resolver
	denied *DeniedError          // set when the walk stopped at the target
}

func cacheKey(arm, record string, records []string) string {
	key := arm + "\x00" + record
	if record == "" && len(records) > 0 {
		sorted := append([]string(nil), records...)
		sort.Strings(sorted)
		key += "\x00" + strings.Join(sorted, "\x00")
	}
	return key
}
