package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// endpointCooldownDuration is how long to wait before re-enabling a disabled endpoint
	endpointCooldownDuration = 5 * time.Minute
)

// Web3Endpoint is a single RPC provider of the configured chain.
type Web3Endpoint struct {
	URI        string
	client     *ethclient.Client
	disabledAt time.Time // zero if never disabled
}

// Web3Iterator hands out endpoints in round-robin order. Failing endpoints
// are disabled for endpointCooldownDuration; when every endpoint is
// disabled they are all put back in rotation.
type Web3Iterator struct {
	nextIndex int
	available []*Web3Endpoint
	disabled  []*Web3Endpoint
	mtx       sync.Mutex
	now       func() time.Time
}

// NewWeb3Iterator creates a new Web3Iterator with the given endpoints.
func NewWeb3Iterator(endpoints ...*Web3Endpoint) *Web3Iterator {
	return &Web3Iterator{
		available: append([]*Web3Endpoint{}, endpoints...),
		now:       time.Now,
	}
}

// Available returns the number of available endpoints.
func (it *Web3Iterator) Available() int {
	it.mtx.Lock()
	defer it.mtx.Unlock()
	return len(it.available)
}

// Disabled returns the number of disabled endpoints.
func (it *Web3Iterator) Disabled() int {
	it.mtx.Lock()
	defer it.mtx.Unlock()
	return len(it.disabled)
}

// Add makes new endpoints available for the next requests.
func (it *Web3Iterator) Add(endpoint ...*Web3Endpoint) {
	it.mtx.Lock()
	defer it.mtx.Unlock()
	it.available = append(it.available, endpoint...)
}

// Next returns the next available endpoint. Disabled endpoints whose
// cooldown elapsed are re-enabled first.
func (it *Web3Iterator) Next() (*Web3Endpoint, error) {
	if it == nil {
		return nil, fmt.Errorf("nil Web3Iterator")
	}
	it.mtx.Lock()
	defer it.mtx.Unlock()
	it.checkCooldowns()

	l := len(it.available)
	if l == 0 {
		return nil, fmt.Errorf("no registered endpoints")
	}
	current := it.available[it.nextIndex]
	if it.nextIndex++; it.nextIndex >= l {
		it.nextIndex = 0
	}
	return current, nil
}

// checkCooldowns must be called with the mutex held.
func (it *Web3Iterator) checkCooldowns() {
	if len(it.disabled) == 0 {
		return
	}
	now := it.now()
	var stillDisabled []*Web3Endpoint
	for _, ep := range it.disabled {
		if now.Sub(ep.disabledAt) >= endpointCooldownDuration {
			ep.disabledAt = time.Time{}
			it.available = append(it.available, ep)
		} else {
			stillDisabled = append(stillDisabled, ep)
		}
	}
	it.disabled = stillDisabled
}

// Disable moves the endpoint with the given URI to the disabled list.
// Unknown URIs are ignored.
func (it *Web3Iterator) Disable(uri string) {
	it.mtx.Lock()
	defer it.mtx.Unlock()

	index := -1
	for i, e := range it.available {
		if e.URI == uri {
			index = i
			break
		}
	}
	if index == -1 {
		return
	}
	ep := it.available[index]
	ep.disabledAt = it.now()
	it.available = append(it.available[:index], it.available[index+1:]...)
	it.disabled = append(it.disabled, ep)

	if it.nextIndex > index {
		it.nextIndex--
	}
	if len(it.available) == 0 {
		it.nextIndex = 0
		it.available = append(it.available, it.disabled...)
		it.disabled = nil
		for _, e := range it.available {
			e.disabledAt = time.Time{}
		}
	} else if it.nextIndex >= len(it.available) {
		it.nextIndex = 0
	}
}
