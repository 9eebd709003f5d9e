// Package nonce keeps the per (wallet, poll) vote nonce. The coordinator
// treats the command with the highest nonce as the voter's current vote, so
// the counter only moves forward, one step per confirmed vote.
package nonce

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/storage"
	"github.com/vocdoni/maci-voter/types"
)

// Initial is the nonce of a wallet that has not voted in a poll yet.
const Initial uint64 = 1

// ErrStale is returned by CompareAndIncrement when the counter moved since
// the caller read it.
var ErrStale = errors.New("stale nonce")

// Ledger serializes increments with a mutex per (wallet, poll) on top of the
// compare-and-swap done by storage.
type Ledger struct {
	storage *storage.Storage

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is dropped from Ledger.locks once no caller holds or waits on it.
type keyLock struct {
	sync.Mutex
	refs int
}

// New returns a Ledger backed by st.
func New(st *storage.Storage) *Ledger {
	return &Ledger{storage: st, locks: make(map[string]*keyLock)}
}

func (l *Ledger) lock(wallet string, pollID *big.Int) (func(), error) {
	w, err := types.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}
	if pollID == nil {
		return nil, fmt.Errorf("invalid poll id <nil>")
	}
	key := w + "/" + pollID.String()
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}, nil
}

// Get returns the current nonce, Initial if the wallet never voted.
func (l *Ledger) Get(wallet string, pollID *big.Int) (uint64, error) {
	n, err := l.storage.Nonce(wallet, pollID)
	if errors.Is(err, storage.ErrNotFound) {
		return Initial, nil
	}
	return n, err
}

// Increment advances the nonce by exactly one and returns the new value.
func (l *Ledger) Increment(wallet string, pollID *big.Int) (uint64, error) {
	unlock, err := l.lock(wallet, pollID)
	if err != nil {
		return 0, err
	}
	defer unlock()
	current, err := l.Get(wallet, pollID)
	if err != nil {
		return 0, err
	}
	return l.swap(wallet, pollID, current)
}

// CompareAndIncrement advances the nonce only if it still equals expected,
// the value embedded in the confirmed vote. Otherwise the counter is left
// as is and ErrStale is returned, so two submissions built with the same
// nonce record a single increment.
func (l *Ledger) CompareAndIncrement(wallet string, pollID *big.Int, expected uint64) (uint64, error) {
	unlock, err := l.lock(wallet, pollID)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return l.swap(wallet, pollID, expected)
}

func (l *Ledger) swap(wallet string, pollID *big.Int, expected uint64) (uint64, error) {
	next := expected + 1
	err := l.storage.CompareAndSwapNonce(wallet, pollID, expected, Initial, next)
	if errors.Is(err, storage.ErrValueChanged) {
		return 0, fmt.Errorf("%w: %w", ErrStale, err)
	}
	if err != nil {
		return 0, err
	}
	log.Debugw("nonce incremented", "wallet", wallet, "poll", pollID.String(), "nonce", next)
	return next, nil
}
