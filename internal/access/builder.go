// Package access computes which forms a user may open for a record.
//
// Forms are walked in arm order (events in timeline order, forms in declared
// order). A form is reachable only while every earlier non-exception form of
// the record is complete; once the chain breaks, every later form is denied.
package access

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/dyluth/ldew/pkg/clinical"
)

var (
	// ErrSourceUnavailable reports a failed completion fetch. Build still
	// returns a fail-safe matrix alongside it.
	ErrSourceUnavailable = errors.New("completion source unavailable")

	// ErrUnknownTarget reports a target (event, form) outside the arm.
	ErrUnknownTarget = errors.New("target is not part of the arm")
)

// CompletionSource supplies per-record completion state.
// With no records it returns every record that has data.
type CompletionSource interface {
	FetchCompletion(ctx context.Context, records []string, forms []string) (map[string]*clinical.RecordData, error)
}

// ConflictResolver is another module that may deny forms on its own.
// Its denials are merged into the matrix and never reverted.
type ConflictResolver interface {
	ComputeDenied(ctx context.Context, arm, record string) (clinical.AccessMatrix, error)
}

// Target is the (event, form) the caller is about to render.
type Target struct {
	Event string
	Form  string
}

// Query selects what to build.
type Query struct {
	Arm    *clinical.Arm
	Record string  // empty = dashboard
	Target *Target // optional; requires Record

	// Records lists the records a dashboard shows. Each one is walked even
	// when the completion source has nothing for it, so a failed fetch still
	// yields fail-safe denials. Empty = every record with data.
	Records []string
}

// DeniedError signals that the target itself is denied and the request must
// be redirected to the record's home page.
type DeniedError struct {
	Record string
	Event  string
	Form   string
}

func (e *DeniedError) matches(t *Target) bool {
	return t != nil && t.Event == e.Event && t.Form == e.Form
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied to form '%s' (event '%s') for record '%s'", e.Form, e.Event, e.Record)
}

// IsDenied unwraps err into a *DeniedError.
func IsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

// Options configures the gating rules.
type Options struct {
	Exceptions clinical.FormSet

	// ExceptionsGateChain makes an exception form's own completion feed the
	// chain. Exception forms are always allowed either way.
	ExceptionsGateChain bool
}

// Builder computes access matrices. It holds no per-request state; results
// are cached on the RequestContext passed to Build.
type Builder struct {
	source   CompletionSource
	resolver ConflictResolver
	opts     Options
}

// NewBuilder creates a builder. resolver may be nil.
func NewBuilder(source CompletionSource, resolver ConflictResolver, opts Options) *Builder {
	if opts.Exceptions == nil {
		opts.Exceptions = clinical.NewFormSet()
	}
	return &Builder{
		source:   source,
		resolver: resolver,
		opts:     opts,
	}
}

// Build returns the access matrix for q.
//
// The first call for an (arm, record) pair within rc fetches and computes;
// later calls reuse the fetched data and return the identical cached matrix.
// When q.Target is denied by the chain, Build stops early and returns the
// partial matrix with a *DeniedError. A later query for the same record with
// another target (or none) walks the cached data again without fetching.
// When the completion source fails, Build returns a fail-safe matrix (first
// form allowed, everything after denied) together with an error wrapping
// ErrSourceUnavailable.
func (b *Builder) Build(ctx context.Context, rc *RequestContext, q Query) (clinical.AccessMatrix, error) {
	if q.Arm == nil || len(q.Arm.Events) == 0 {
		return nil, fmt.Errorf("arm configuration is missing or has no events")
	}
	if q.Target != nil {
		if q.Record == "" {
			return nil, fmt.Errorf("%w: a target requires a record", ErrUnknownTarget)
		}
		if !q.Arm.HasForm(q.Target.Event, q.Target.Form) {
			return nil, fmt.Errorf("%w: form '%s' in event '%s' (arm '%s')", ErrUnknownTarget, q.Target.Form, q.Target.Event, q.Arm.Name)
		}
	}

	key := cacheKey(q.Arm.Name, q.Record, q.Records)
	res, ok := rc.lookup(key)
	switch {
	case !ok:
		res = b.compute(rc, q, b.load(ctx, rc, q))
		rc.store(key, res)
	case res.denied != nil && !res.denied.matches(q.Target):
		// The cached walk stopped at another target.
		res = b.compute(rc, q, res.input)
		rc.store(key, res)
	}

	if res.denied != nil {
		return res.matrix, res.denied
	}
	if q.Target != nil && res.gated.Denied(q.Record, q.Target.Event, q.Target.Form) {
		return res.matrix, &DeniedError{Record: q.Record, Event: q.Target.Event, Form: q.Target.Form}
	}
	return res.matrix, res.input.sourceErr
}

// load fetches completion data and resolver denials for the query's records.
func (b *Builder) load(ctx context.Context, rc *RequestContext, q Query) *input {
	in := &input{seeds: make(map[string]clinical.AccessMatrix)}

	records := q.Records
	if q.Record != "" {
		records = []string{q.Record}
	}

	rc.fetches++
	data, err := b.source.FetchCompletion(ctx, records, q.Arm.Forms())
	if err != nil {
		log.Printf("[Access] request=%s completion fetch failed for arm '%s': %v", rc.ID, q.Arm.Name, err)
		in.sourceErr = fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		data = nil
	}
	if data == nil {
		data = make(map[string]*clinical.RecordData)
	}
	for _, record := range records {
		if data[record] == nil {
			data[record] = clinical.NewRecordData(record)
		}
	}
	in.data = data

	in.records = make([]string, 0, len(data))
	for id := range data {
		in.records = append(in.records, id)
	}
	sort.Strings(in.records)

	if b.resolver != nil {
		for _, record := range in.records {
			seed, err := b.resolver.ComputeDenied(ctx, q.Arm.Name, record)
			if err != nil {
				log.Printf("[Access] request=%s conflict resolver failed for record '%s', using local rules only: %v", rc.ID, record, err)
				continue
			}
			in.seeds[record] = seed
		}
	}

	return in
}

// compute walks every loaded record, stopping at a denied target.
func (b *Builder) compute(rc *RequestContext, q Query, in *input) *result {
	res := &result{
		input:  in,
		matrix: make(clinical.AccessMatrix),
		gated:  make(clinical.AccessMatrix),
	}

	for _, record := range in.records {
		res.matrix.Merge(in.seeds[record])

		if denied := b.walk(res, q, record, in.data[record]); denied != nil {
			log.Printf("[Access] request=%s %v", rc.ID, denied)
			res.denied = denied
			return res
		}
	}

	return res
}

// walk applies the gating chain to one record.
func (b *Builder) walk(res *result, q Query, record string, data *clinical.RecordData) *DeniedError {
	previousCompleted := true

	for _, ev := range q.Arm.Events {
		for _, form := range ev.Forms {
			if res.matrix.Denied(record, ev.ID, form) {
				continue
			}

			if b.opts.Exceptions.Has(form) {
				if b.opts.ExceptionsGateChain && previousCompleted {
					previousCompleted = data.Form(ev.ID, form).Completed()
				}
				continue
			}

			if !previousCompleted {
				res.matrix.Deny(record, ev.ID, form)
				res.gated.Deny(record, ev.ID, form)

				if q.Target != nil && record == q.Record && q.Target.Event == ev.ID && q.Target.Form == form {
					return &DeniedError{Record: record, Event: ev.ID, Form: form}
				}
				continue
			}

			previousCompleted = data.Form(ev.ID, form).Completed()
		}
	}

	return nil
}
