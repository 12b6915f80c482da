// services/users.go
package services

import (
	"context"
	"strings"
	"sync"

	"relay-hub/models"

	"go.uber.org/zap"
)

// TaskListener receives a wallet's full task list after a change.
type TaskListener func(wallet string, tasks []models.Task)

// UserDirectory is the single source of truth for per-wallet state. It
// serializes mutations per wallet and wraps every store fault in StorageError.
type UserDirectory struct {
	store UserStore
	log   *zap.Logger

	mu       sync.Mutex
	locks    map[string]*walletLock
	listener TaskListener
}

type walletLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserDirectory(store UserStore, logger *zap.Logger) *UserDirectory {
	return &UserDirectory{
		store: store,
		log:   logger,
		locks: make(map[string]*walletLock),
	}
}

// OnTasksChanged registers fn to run after every task append or toggle. fn
// runs while the wallet is still locked, so calls for one wallet arrive in
// commit order and each carries the list as of that commit. fn must not
// call back into the directory for the same wallet.
func (d *UserDirectory) OnTasksChanged(fn TaskListener) {
	d.mu.Lock()
	d.listener = fn
	d.mu.Unlock()
}

func (d *UserDirectory) FindByWallet(ctx context.Context, wallet string) (*models.UserRecord, error) {
	user, err := d.store.FindByWallet(ctx, wallet)
	return user, storageErr("find by wallet", err)
}

func (d *UserDirectory) FindByExternalID(ctx context.Context, externalID string) (*models.UserRecord, error) {
	user, err := d.store.FindByExternalID(ctx, externalID)
	return user, storageErr("find by external id", err)
}

// CreateIfAbsent returns the wallet's record, creating an empty one first if needed.
func (d *UserDirectory) CreateIfAbsent(ctx context.Context, wallet string) (*models.UserRecord, error) {
	user, err := d.store.Upsert(ctx, wallet)
	if err != nil {
		return nil, storageErr("upsert user", err)
	}
	return user, nil
}

// LinkExternalID binds externalID to wallet. Any previous holder of the id loses it.
func (d *UserDirectory) LinkExternalID(ctx context.Context, wallet, externalID string) error {
	unlock := d.lock(wallet)
	defer unlock()

	if err := d.store.SetExternalID(ctx, wallet, externalID); err != nil {
		return storageErr("link external id", err)
	}
	d.log.Info("[USERS] external id linked", zap.String("wallet", wallet), zap.String("external_id", externalID))
	return nil
}

// AppendTask adds a not-done task to the wallet's list, creating the user if needed.
func (d *UserDirectory) AppendTask(ctx context.Context, wallet, text string) (models.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Task{}, ErrEmptyTask
	}

	unlock := d.lock(wallet)
	defer unlock()

	task, err := d.store.AppendTask(ctx, wallet, text)
	if err != nil {
		return models.Task{}, storageErr("append task", err)
	}
	d.publishLocked(ctx, wallet)
	return task, nil
}

// ToggleTask flips done on the matching task. found is false, with a nil
// error, when the wallet or task does not exist.
func (d *UserDirectory) ToggleTask(ctx context.Context, wallet string, taskID int64) (bool, error) {
	unlock := d.lock(wallet)
	defer unlock()

	found, err := d.store.ToggleTask(ctx, wallet, taskID)
	if err != nil {
		return false, storageErr("toggle task", err)
	}
	if found {
		d.publishLocked(ctx, wallet)
	}
	return found, nil
}

func (d *UserDirectory) ListTasks(ctx context.Context, wallet string) ([]models.Task, error) {
	tasks, err := d.store.ListTasks(ctx, wallet)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// publishLocked hands the committed list to the listener. The caller holds
// the wallet lock. A failed read is logged; the change itself is committed.
func (d *UserDirectory) publishLocked(ctx context.Context, wallet string) {
	d.mu.Lock()
	fn := d.listener
	d.mu.Unlock()
	if fn == nil {
		return
	}

	tasks, err := d.store.ListTasks(ctx, wallet)
	if err != nil {
		d.log.Error("[USERS] read tasks after change", zap.String("wallet", wallet), zap.Error(storageErr("list tasks", err)))
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	fn(wallet, tasks)
}

// lock takes the per-wallet mutex; entries are dropped once unused.
func (d *UserDirectory) lock(wallet string) func() {
	d.mu.Lock()
	l, ok := d.locks[wallet]
	if !ok {
		l = &walletLock{}
		d.locks[wallet] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, wallet)
		}
		d.mu.Unlock()
	}
}
