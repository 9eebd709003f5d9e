package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/maci-voter/api"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/voter"
)

const apiShutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	voter   *voter.Voter
	pollers *Pollers
	API     *api.API
	mu      sync.Mutex
	cancel  context.CancelFunc
	host    string
	port    int
	noLogs  bool
}

// NewAPI creates a new APIService instance. Pollers is optional.
func NewAPI(v *voter.Voter, pollers *Pollers, host string, port int, disableLogging bool) *APIService {
	return &APIService{
		voter:   v,
		pollers: pollers,
		host:    host,
		port:    port,
		noLogs:  disableLogging,
	}
}

// Start begins the API server and the pollers. It returns an error if the
// service is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	queries := map[string]api.Query{}
	if as.pollers != nil {
		if err := as.pollers.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("failed to start pollers: %w", err)
		}
		for name, q := range as.pollers.Queries() {
			queries[name] = q
		}
	}

	var err error
	as.API, err = api.New(&api.APIConfig{
		Host:    as.host,
		Port:    as.port,
		Voter:   as.voter,
		Queries: queries,

		DisableLogging: as.noLogs,
	})
	if err != nil {
		if as.pollers != nil {
			as.pollers.Stop()
		}
		cancel()
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.cancel = cancel
	return nil
}

// Stop halts the API server and the pollers.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
	defer cancel()
	if err := as.API.Close(ctx); err != nil {
		log.Warnw("API server shutdown failed", "error", err.Error())
	}
	if as.pollers != nil {
		as.pollers.Stop()
	}
	as.cancel()
	as.cancel = nil
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}
