// Package hooks implements the host render points: the top of every page
// (dashboard and record-home link disabling) and the data entry form
// (access check, button policy, field defaults, value copy, required
// fields, auto-lock).
//
// Each call reads one configuration snapshot and builds access matrices
// through the caller's access.RequestContext, so the matrix is computed at
// most once per (arm, record) within a request.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/dyluth/ldew/internal/access"
	"github.com/dyluth/ldew/internal/autolock"
	"github.com/dyluth/ldew/internal/config"
	"github.com/dyluth/ldew/internal/defaultfield"
	"github.com/dyluth/ldew/internal/fdec"
	"github.com/dyluth/ldew/internal/navigation"
	"github.com/dyluth/ldew/internal/valuecopy"
	"github.com/dyluth/ldew/pkg/clinical"
)

// Host pages the render points react to.
const (
	PageDashboard  = "dashboard"
	PageRecordHome = "record_home"
	PageDataEntry  = "data_entry"
)

// Store is everything the render points read and write.
// *clinical.Client satisfies it.
type Store interface {
	access.CompletionSource
	access.ConflictResolver
	valuecopy.Store
	autolock.Store
	SetStatus(ctx context.Context, record, eventID, form string, status clinical.CompletionStatus) error
	SetInstanceStatus(ctx context.Context, record, eventID, form string, instance int, status clinical.CompletionStatus) error
}

// ConfigSource hands out immutable configuration snapshots.
// *config.Watcher satisfies it.
type ConfigSource interface {
	Current() *config.ProjectConfig
}

// PageContext describes the page the host is rendering.
type PageContext struct {
	Page     string       `json:"page"`
	Arm      string       `json:"arm,omitempty"`
	Record   string       `json:"record,omitempty"`
	Event    string       `json:"event,omitempty"`
	Form     string       `json:"form,omitempty"`
	Instance int          `json:"instance,omitempty"`
	UserRole string       `json:"userRole,omitempty"`
	Fields   []fdec.Field `json:"fields,omitempty"`

	// Records lists the records the dashboard shows.
	Records []string `json:"records,omitempty"`

	// CurrentStatus is the completion field value the form opens with.
	CurrentStatus clinical.CompletionStatus `json:"currentStatus,omitempty"`
}

// DashboardOutput lists the link selectors to disable.
type DashboardOutput struct {
	DisabledLinks []string `json:"disabledLinks"`
}

// DataEntryOutput is the data entry page payload. A non-empty Redirect
// means rendering must stop and the user be sent there.
type DataEntryOutput struct {
	Redirect           string                 `json:"redirect,omitempty"`
	RFIO               navigation.Settings    `json:"rfio"`
	Visibility         navigation.Visibility  `json:"visibility"`
	RemoveIgnoreButton bool                   `json:"removeIgnoreButton"`
	FDEC               *fdec.Settings         `json:"fdec,omitempty"`
	AutoLock           bool                   `json:"autoLock"`
	Locked             bool                   `json:"locked"`
	Defaults           []defaultfield.Default `json:"defaults,omitempty"`
	Copied             *valuecopy.Result      `json:"copied,omitempty"`
}

// Hooks serves the render points.
type Hooks struct {
	cfg   ConfigSource
	store Store
}

// New creates the render points.
func New(cfg ConfigSource, store Store) *Hooks {
	return &Hooks{cfg: cfg, store: store}
}

// snapshot bundles one configuration snapshot with the components built from it.
type snapshot struct {
	cfg     *config.ProjectConfig
	arm     *clinical.Arm
	builder *access.Builder
}

func (h *Hooks) snapshot(armName string) (*snapshot, error) {
	cfg := h.cfg.Current()
	if cfg == nil {
		return nil, fmt.Errorf("no configuration loaded")
	}

	arm, err := cfg.Arm(armName)
	if err != nil {
		return nil, err
	}

	var resolver access.ConflictResolver
	if cfg.ConflictResolverEnabled() {
		resolver = h.store
	}

	return &snapshot{
		cfg: cfg,
		arm: arm,
		builder: access.NewBuilder(h.store, resolver, access.Options{
			Exceptions:          cfg.ExceptionSet(),
			ExceptionsGateChain: cfg.ExceptionsGateChain,
		}),
	}, nil
}

// EveryPageTop returns the links to disable on the record-home page (one
// record) and the dashboard (every record with data). Other pages get nil.
func (h *Hooks) EveryPageTop(ctx context.Context, rc *access.RequestContext, pc PageContext) (*DashboardOutput, error) {
	var q access.Query
	switch pc.Page {
	case PageRecordHome:
		if pc.Record == "" {
			return nil, nil
		}
		q.Record = pc.Record
	case PageDashboard:
		q.Records = pc.Records
	default:
		return nil, nil
	}

	snap, err := h.snapshot(pc.Arm)
	if err != nil {
		return nil, err
	}
	q.Arm = snap.arm

	matrix, err := snap.builder.Build(ctx, rc, q)
	if err != nil {
		if !errors.Is(err, access.ErrSourceUnavailable) {
			return nil, err
		}
		h.logEvent(rc, "completion_unavailable", map[string]interface{}{
			"page":  pc.Page,
			"error": err.Error(),
		})
	}

	var links navigation.LinkSet
	if q.Record != "" {
		links = navigation.DisabledLinks(matrix, snap.arm, q.Record)
	} else {
		links = navigation.DisabledLinks(matrix, snap.arm)
	}

	return &DashboardOutput{DisabledLinks: links.Selectors()}, nil
}

// DataEntryForm checks access to the form being rendered and assembles the
// page payload. When the form is denied the output carries only Redirect.
func (h *Hooks) DataEntryForm(ctx context.Context, rc *access.RequestContext, pc PageContext) (*DataEntryOutput, error) {
	if pc.Record == "" || pc.Event == "" || pc.Form == "" {
		return nil, fmt.Errorf("record, event and form are required")
	}

	snap, err := h.snapshot(pc.Arm)
	if err != nil {
		return nil, err
	}

	matrix, redirect, err := h.authorize(ctx, rc, snap, pc.Record, pc.Event, pc.Form)
	if err != nil {
		return nil, err
	}
	if redirect != "" {
		return &DataEntryOutput{Redirect: redirect}, nil
	}

	event, _ := snap.arm.Event(pc.Event)
	exceptions := snap.cfg.ExceptionSet()

	rfio := navigation.BuildSettings(navigation.ButtonInput{
		Record:     pc.Record,
		Event:      event,
		Form:       pc.Form,
		Matrix:     matrix,
		Exceptions: exceptions,
	}, snap.cfg.HideNextRecordButton)

	out := &DataEntryOutput{
		RFIO:               rfio,
		Visibility:         navigation.Evaluate(rfio, pc.CurrentStatus),
		RemoveIgnoreButton: rfio.ForceButtonsDisplay != navigation.DisplayShow,
	}

	instance := instanceOrDefault(pc.Instance)
	policy := autolock.NewPolicy(snap.cfg.RolesToLock)
	out.AutoLock = policy.Enabled(pc.UserRole)

	out.Locked, err = autolock.NewLocker(policy, h.store).Locked(ctx, pc.Record, pc.Event, pc.Form, instance)
	if err != nil {
		return nil, err
	}

	// A locked form keeps its values.
	if !out.Locked {
		h.prefill(ctx, rc, snap, pc, instance, out)
	}

	if snap.cfg.FDECEnabled() {
		settings := fdec.BuildSettings(pc.Form, pc.Fields, snap.cfg.BypassStatuses())
		out.FDEC = &settings
	}

	return out, nil
}

// prefill resolves field defaults, then copies the configured value from the
// previous event. Failures are logged and leave the fields for the user.
func (h *Hooks) prefill(ctx context.Context, rc *access.RequestContext, snap *snapshot, pc PageContext, instance int, out *DataEntryOutput) {
	defaults, err := defaultfield.NewFiller(h.store).Defaults(ctx, pc.Record, pc.Event, instance, pc.Fields)
	if err != nil {
		h.logEvent(rc, "default_from_field_failed", map[string]interface{}{
			"record": pc.Record,
			"event":  pc.Event,
			"form":   pc.Form,
			"error":  err.Error(),
		})
	}
	out.Defaults = defaults

	copier := valuecopy.NewCopier(h.store, snap.cfg.CopyMapping())
	if !copier.Applies(pc.Form) {
		return
	}
	copied, err := copier.Copy(ctx, snap.arm, pc.Record, pc.Event, pc.Form, instance)
	if err != nil {
		h.logEvent(rc, "value_copy_failed", map[string]interface{}{
			"record": pc.Record,
			"event":  pc.Event,
			"form":   pc.Form,
			"error":  err.Error(),
		})
	}
	out.Copied = copied
}

// SaveInput is a form save submitted by the host.
type SaveInput struct {
	PageContext
	Status    clinical.CompletionStatus `json:"status"`
	Repeating bool                      `json:"repeating,omitempty"`
	Values    map[string]string         `json:"values,omitempty"`
	Visible   map[string]bool           `json:"visible,omitempty"`
}

// SaveOutput reports what happened to a save.
type SaveOutput struct {
	Redirect string   `json:"redirect,omitempty"`
	Saved    bool     `json:"saved"`
	Missing  []string `json:"missing,omitempty"`
	Locked   bool     `json:"locked"`
}

// SaveRecord re-checks access, refuses locked forms, enforces required
// fields, writes the status and applies lock-on-save.
func (h *Hooks) SaveRecord(ctx context.Context, rc *access.RequestContext, in SaveInput) (*SaveOutput, error) {
	if in.Record == "" || in.Event == "" || in.Form == "" {
		return nil, fmt.Errorf("record, event and form are required")
	}
	if err := in.Status.Validate(); err != nil {
		return nil, err
	}

	snap, err := h.snapshot(in.Arm)
	if err != nil {
		return nil, err
	}

	_, redirect, err := h.authorize(ctx, rc, snap, in.Record, in.Event, in.Form)
	if err != nil {
		return nil, err
	}
	if redirect != "" {
		return &SaveOutput{Redirect: redirect}, nil
	}

	instance := instanceOrDefault(in.Instance)
	locker := autolock.NewLocker(autolock.NewPolicy(snap.cfg.RolesToLock), h.store)

	locked, err := locker.Locked(ctx, in.Record, in.Event, in.Form, instance)
	if err != nil {
		return nil, err
	}
	if locked {
		h.logEvent(rc, "save_refused_locked", map[string]interface{}{
			"record":   in.Record,
			"event":    in.Event,
			"form":     in.Form,
			"instance": instance,
			"role":     in.UserRole,
		})
		return &SaveOutput{Locked: true}, nil
	}

	if snap.cfg.FDECEnabled() {
		res := fdec.Check(in.Fields, snap.cfg.BypassStatuses(), fdec.Submission{
			Status:  in.Status,
			Values:  in.Values,
			Visible: in.Visible,
		})
		if !res.Allowed {
			h.logEvent(rc, "save_blocked", map[string]interface{}{
				"record":  in.Record,
				"form":    in.Form,
				"missing": res.Missing,
			})
			return &SaveOutput{Missing: res.Missing}, nil
		}
	}

	if in.Repeating {
		err = h.store.SetInstanceStatus(ctx, in.Record, in.Event, in.Form, instance, in.Status)
	} else {
		err = h.store.SetStatus(ctx, in.Record, in.Event, in.Form, in.Status)
	}
	if err != nil {
		return nil, err
	}

	locked, err = locker.LockOnSave(ctx, in.UserRole, in.Record, in.Event, in.Form, instance, in.Status)
	if err != nil {
		return nil, err
	}

	return &SaveOutput{Saved: true, Locked: locked}, nil
}

// authorize builds the record's matrix with (event, form) as the target.
// A denied target yields the record-home redirect URL. A failed completion
// fetch is logged and the fail-safe matrix is used.
func (h *Hooks) authorize(ctx context.Context, rc *access.RequestContext, snap *snapshot, record, eventID, form string) (clinical.AccessMatrix, string, error) {
	matrix, err := snap.builder.Build(ctx, rc, access.Query{
		Arm:    snap.arm,
		Record: record,
		Target: &access.Target{Event: eventID, Form: form},
	})
	if err == nil {
		return matrix, "", nil
	}

	if denied, ok := access.IsDenied(err); ok {
		h.logEvent(rc, "access_denied", map[string]interface{}{
			"record": denied.Record,
			"event":  denied.Event,
			"form":   denied.Form,
		})
		return matrix, RecordHomeURL(snap.cfg, snap.arm.Name, record), nil
	}

	if errors.Is(err, access.ErrSourceUnavailable) {
		h.logEvent(rc, "completion_unavailable", map[string]interface{}{
			"record": record,
			"error":  err.Error(),
		})
		return matrix, "", nil
	}

	return nil, "", err
}

// RecordHomeURL is where a denied request is sent.
func RecordHomeURL(cfg *config.ProjectConfig, arm, record string) string {
	q := url.Values{}
	q.Set("pid", cfg.ProjectID)
	q.Set("id", record)
	q.Set("arm", arm)
	return strings.TrimRight(cfg.BaseURL, "/") + "/DataEntry/record_home.php?" + q.Encode()
}

func instanceOrDefault(instance int) int {
	if instance < 1 {
		return 1
	}
	return instance
}

// logEvent writes a structured JSON log line tagged with the request ID.
func (h *Hooks) logEvent(rc *access.RequestContext, eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["component"] = "hooks"
	data["event_type"] = eventType
	data["request_id"] = rc.ID

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Hooks] Failed to marshal log event: %v", err)
		return
	}

	log.Printf("[Hooks] %s", jsonData)
}
