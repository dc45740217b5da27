// Package autolock locks forms on save for configured user roles.
package autolock

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/ldew/pkg/clinical"
)

// Policy decides whether lock-on-save applies to a user role.
type Policy struct {
	roles map[string]bool
}

// NewPolicy builds a policy from the configured roles-to-lock.
func NewPolicy(roles []string) Policy {
	p := Policy{roles: make(map[string]bool, len(roles))}
	for _, r := range roles {
		p.roles[r] = true
	}
	return p
}

// Enabled reports whether forms saved by role get locked.
func (p Policy) Enabled(role string) bool {
	return p.roles[role]
}

// Store persists locks.
type Store interface {
	LockForm(ctx context.Context, record, eventID, form string, instance int) error
	IsLocked(ctx context.Context, record, eventID, form string, instance int) (bool, error)
}

// Locker applies the policy on save.
type Locker struct {
	policy Policy
	store  Store
}

// NewLocker creates a locker.
func NewLocker(policy Policy, store Store) *Locker {
	return &Locker{policy: policy, store: store}
}

// Locked reports whether a form instance is locked. A locked instance must
// not be saved again, whatever the role.
func (l *Locker) Locked(ctx context.Context, record, eventID, form string, instance int) (bool, error) {
	locked, err := l.store.IsLocked(ctx, record, eventID, form, instance)
	if err != nil {
		return false, fmt.Errorf("failed to read lock of %s/%s for record %s: %w", eventID, form, record, err)
	}
	return locked, nil
}

// LockOnSave locks the saved form instance when the role is covered by the
// policy and the form was saved as complete. Returns whether a lock was set.
func (l *Locker) LockOnSave(ctx context.Context, role, record, eventID, form string, instance int, status clinical.CompletionStatus) (bool, error) {
	if !l.policy.Enabled(role) || status != clinical.StatusComplete {
		return false, nil
	}

	if err := l.store.LockForm(ctx, record, eventID, form, instance); err != nil {
		return false, fmt.Errorf("failed to lock %s/%s for record %s: %w", eventID, form, record, err)
	}

	log.Printf("[AutoLock] Locked form '%s' (event '%s', instance %d) for record '%s' saved by role '%s'",
		form, eventID, instance, record, role)
	return true, nil
}
