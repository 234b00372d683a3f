package services

import (
	"context"
	"time"

	"github.com/parolam/breach-checker/models"
	"github.com/parolam/breach-checker/store"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
)

// Locker serialises registry writers. store.RedisLocker works across
// processes; store.LocalLocker only within one.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// registryLockKey is shared by all names: two new breaches created at once
// would otherwise both compute the same max+1.
const registryLockKey = "breach-registry"

type Registry struct {
	store  store.Store
	locker Locker
}

func NewRegistry(s store.Store, l Locker) *Registry {
	if l == nil {
		l = store.NewLocalLocker()
	}
	return &Registry{store: s, locker: l}
}

// GetOrCreate returns the id of the breach called name, creating it with
// id max+1 (1 for an empty registry) when it does not exist yet.
//
// Creation holds the registry lock for the whole read-max-insert sequence.
// Afterwards the name is read back and the smallest id bound to it wins, so
// a writer that bypassed the lock still converges on a single id.
func (r *Registry) GetOrCreate(ctx context.Context, name string, date time.Time) (uint32, error) {
	pterm.Info.Printf("checking breach id for %q ...\n", name)

	id, ok, err := r.store.FindBreachID(ctx, name)
	if err != nil {
		return 0, err
	}
	if ok {
		pterm.Info.Printf("existing breach found, id: %d\n", id)
		return id, nil
	}

	unlock, err := r.locker.Lock(ctx, registryLockKey)
	if err != nil {
		return 0, err
	}
	defer unlock()

	// someone may have created it while we waited
	if id, ok, err := r.store.FindBreachID(ctx, name); err != nil || ok {
		return id, err
	}

	maxID, err := r.store.MaxBreachID(ctx)
	if err != nil {
		return 0, err
	}

	b := models.Breach{ID: maxID + 1, Name: name, Date: date}
	if err := r.store.InsertBreach(ctx, b); err != nil {
		return 0, err
	}

	id, ok, err = r.store.FindBreachID(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Errorf("breach %q not visible after insert", name)
	}

	pterm.Success.Printf("new breach created, id: %d\n", id)
	return id, nil
}
