package fakeapi

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/equiptrack-client/users"
)

var errNotFound = errors.New("not found")

type account struct {
	profile      users.Profile
	passwordHash string
}

// accountRepo keeps accounts by id with an email index.
type accountRepo struct {
	accounts map[string]*account
	emailIDs map[string]string // email to account id
	lock     sync.RWMutex
}

func newAccountRepo() *accountRepo {
	return &accountRepo{
		accounts: make(map[string]*account),
		emailIDs: make(map[string]string),
	}
}

func (r *accountRepo) upsert(a *account) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if a.profile.ID == "" {
		a.profile.ID = uuid.New().String()
	}
	if old, ok := r.accounts[a.profile.ID]; ok && old.profile.Email != a.profile.Email {
		delete(r.emailIDs, strings.ToLower(old.profile.Email))
	}
	r.accounts[a.profile.ID] = a
	r.emailIDs[strings.ToLower(a.profile.Email)] = a.profile.ID
}

func (r *accountRepo) delete(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return errNotFound
	}
	delete(r.emailIDs, strings.ToLower(a.profile.Email))
	delete(r.accounts, id)
	return nil
}

func (r *accountRepo) byEmail(email string) (*account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.emailIDs[strings.ToLower(email)]
	if !ok {
		return nil, errNotFound
	}
	return r.copyOf(id), nil
}

func (r *accountRepo) byID(id string) (*account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if _, ok := r.accounts[id]; !ok {
		return nil, errNotFound
	}
	return r.copyOf(id), nil
}

func (r *accountRepo) copyOf(id string) *account {
	a := *r.accounts[id]
	return &a
}

func (r *accountRepo) list() []users.Profile {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]users.Profile, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a.profile)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out
}
