package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/voter"
	"golang.org/x/sync/errgroup"
)

// Poll interval bounds.
const (
	MinPollInterval = 3 * time.Second
	MaxPollInterval = 30 * time.Second
)

// Query names exposed through the API.
const (
	QueryPollStatus = "pollStatus"
	QueryMembership = "membership"
	QueryBalance    = "balance"
)

// BalanceReader reads the native balance of an account.
type BalanceReader interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// PollerIntervals holds the refresh interval of every poller.
type PollerIntervals struct {
	Status     time.Duration
	Membership time.Duration
	Balance    time.Duration
}

// Validate checks that every interval is within bounds.
func (p PollerIntervals) Validate() error {
	for name, d := range map[string]time.Duration{
		QueryPollStatus: p.Status,
		QueryMembership: p.Membership,
		QueryBalance:    p.Balance,
	} {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("%s interval %s out of range [%s, %s]", name, d, MinPollInterval, MaxPollInterval)
		}
	}
	return nil
}

// Pollers keeps the chain reads of one wallet up to date.
type Pollers struct {
	Status     *Query[*voter.PollStatus]
	Membership *Query[bool]
	Balance    *Query[*big.Int]

	intervals PollerIntervals
}

// NewPollers builds the queries for wallet. The membership query needs the
// Semaphore identity of the wallet to be derived already; until then it
// reports an error.
func NewPollers(v *voter.Voter, balances BalanceReader, wallet common.Address, intervals PollerIntervals) (*Pollers, error) {
	if err := intervals.Validate(); err != nil {
		return nil, err
	}
	return &Pollers{
		Status: NewQuery(QueryPollStatus, v.PollStatus),
		Membership: NewQuery(QueryMembership, func(ctx context.Context) (bool, error) {
			return v.Membership(ctx, wallet.Hex())
		}),
		Balance: NewQuery(QueryBalance, func(ctx context.Context) (*big.Int, error) {
			return balances.Balance(ctx, wallet)
		}),
		intervals: intervals,
	}, nil
}

// Queries lists the pollers keyed by name.
func (p *Pollers) Queries() map[string]Refresher {
	return map[string]Refresher{
		p.Status.Name():     p.Status,
		p.Membership.Name(): p.Membership,
		p.Balance.Name():    p.Balance,
	}
}

// RefreshAll refreshes every query concurrently and returns the first error.
func (p *Pollers) RefreshAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, q := range p.Queries() {
		g.Go(func() error { return q.RefreshNow(gctx) })
	}
	return g.Wait()
}

// Start launches every poller.
func (p *Pollers) Start(ctx context.Context) error {
	if err := p.Status.Start(ctx, p.intervals.Status); err != nil {
		return err
	}
	if err := p.Membership.Start(ctx, p.intervals.Membership); err != nil {
		p.Stop()
		return err
	}
	if err := p.Balance.Start(ctx, p.intervals.Balance); err != nil {
		p.Stop()
		return err
	}
	log.Infow("pollers started",
		"status", p.intervals.Status.String(),
		"membership", p.intervals.Membership.String(),
		"balance", p.intervals.Balance.String())
	return nil
}

// Stop halts every poller.
func (p *Pollers) Stop() {
	p.Status.Stop()
	p.Membership.Stop()
	p.Balance.Stop()
}

// Refresher is the untyped view of a Query.
type Refresher interface {
	Name() string
	Current() any
	RefreshNow(ctx context.Context) error
}
