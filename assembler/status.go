package assembler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/checklist"
	applog "github.com/warp/checklist-engine/internal/log"
)

// =============================================================================
// RESOLVE
// =============================================================================

// Resolve re-derives the instance identified by key, with its stored override
// applied. Keys that no longer derive from the current task definition
// return ErrInstanceNotFound.
func (a *Assembler) Resolve(ctx context.Context, key checklist.InstanceKey, country string) (checklist.Instance, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return checklist.Instance{}, err
	}
	return a.resolve(snap, key, country)
}

func (a *Assembler) resolve(snap *snapshot, key checklist.InstanceKey, country string) (checklist.Instance, error) {
	key = checklist.NewInstanceKey(key.TaskID, key.Start, key.End)

	var task *checklist.Task
	for i := range snap.tasks {
		if snap.tasks[i].ID == key.TaskID {
			task = &snap.tasks[i]
			break
		}
	}
	if task == nil {
		return checklist.Instance{}, fmt.Errorf("%w: %s", checklist.ErrInstanceNotFound, key)
	}

	day := a.Calendar().Zone(country).DateOf(key.Start)
	for _, inst := range a.Expander.Expand(snap.input(*task, country, calendar.Period{Start: day, End: day})) {
		if inst.Key() == key {
			snap.overlay(&inst)
			return inst, nil
		}
	}
	return checklist.Instance{}, fmt.Errorf("%w: %s", checklist.ErrInstanceNotFound, key)
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

// CanMutate reports whether user may change the status of inst. It mirrors
// the listing visibility rule, except that a delegated instance belongs to
// its delegate alone.
func CanMutate(inst checklist.Instance, user checklist.User) bool {
	if inst.IsDelegated {
		for _, id := range inst.Assignment.UserIDs {
			if id == user.ID {
				return true
			}
		}
		return false
	}
	return inst.Assignment.Includes(user)
}

// authorize resolves the instance and checks the caller may mutate it.
func (a *Assembler) authorize(ctx context.Context, key checklist.InstanceKey, userID checklist.UserID, country string) (checklist.Instance, checklist.User, error) {
	snap, err := a.load(ctx)
	if err != nil {
		return checklist.Instance{}, checklist.User{}, err
	}
	user, ok := snap.users[userID]
	if !ok {
		return checklist.Instance{}, checklist.User{}, fmt.Errorf("%w: %s", checklist.ErrUserNotFound, userID)
	}
	inst, err := a.resolve(snap, key, country)
	if err != nil {
		return checklist.Instance{}, checklist.User{}, err
	}
	if !CanMutate(inst, user) {
		return checklist.Instance{}, checklist.User{}, &checklist.ForbiddenError{
			UserID:    userID,
			Key:       inst.Key(),
			Delegated: inst.IsDelegated,
		}
	}
	return inst, user, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// SetStatus writes a status override for the instance identified by key.
// The write is insert-or-replace: concurrent writers race, the later wins.
func (a *Assembler) SetStatus(ctx context.Context, key checklist.InstanceKey, userID checklist.UserID, status checklist.Status, comment, country string) (checklist.Instance, error) {
	if !status.Settable() {
		return checklist.Instance{}, fmt.Errorf("%w: %q", checklist.ErrInvalidStatus, status)
	}

	inst, user, err := a.authorize(ctx, key, userID, country)
	if err != nil {
		return checklist.Instance{}, err
	}

	name := user.Fullname
	if name == "" {
		name = user.Username
	}
	o := checklist.StatusOverride{
		Key:       inst.Key(),
		Status:    status,
		Comment:   comment,
		UpdatedBy: checklist.Actor{UserID: user.ID, Name: name},
		UpdatedAt: a.Now().UTC(),
	}
	if err := a.Store.SaveOverride(ctx, o); err != nil {
		return checklist.Instance{}, fmt.Errorf("failed to save override: %w", err)
	}

	applog.OrDefault(a.Logger).WithFields(logrus.Fields{
		"key":     o.Key.String(),
		"status":  status,
		"user_id": user.ID,
	}).Info("status set")

	applyOverride(&inst, o)
	return inst, nil
}

// ClearStatus deletes the override of the instance identified by key, so it
// returns to its computed default.
func (a *Assembler) ClearStatus(ctx context.Context, key checklist.InstanceKey, userID checklist.UserID, country string) (checklist.Instance, error) {
	inst, user, err := a.authorize(ctx, key, userID, country)
	if err != nil {
		return checklist.Instance{}, err
	}
	if err := a.Store.DeleteOverride(ctx, inst.Key()); err != nil {
		return checklist.Instance{}, fmt.Errorf("failed to delete override: %w", err)
	}

	applog.OrDefault(a.Logger).WithFields(logrus.Fields{
		"key":     inst.Key().String(),
		"user_id": user.ID,
	}).Info("status cleared")

	inst.Status = checklist.StatusPending
	if inst.End.Before(a.Now()) {
		inst.Status = checklist.StatusMissing
	}
	inst.Comment = ""
	inst.UpdatedBy = nil
	inst.UpdatedAt = nil
	return inst, nil
}
