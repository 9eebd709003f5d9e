// Package api exposes the voter workflows and the chain queries over HTTP.
// Workflows run in the background; clients create one, ask it to advance
// and poll its snapshot until it completes or pauses on an error.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/voter"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
	// DefaultMaxWorkflows bounds the number of live workflows.
	DefaultMaxWorkflows = 1024
)

// Query is a periodically refreshed chain read.
type Query interface {
	Name() string
	Current() any
	RefreshNow(ctx context.Context) error
}

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host         string
	Port         int
	Voter        *voter.Voter
	Queries      map[string]Query
	MaxWorkflows int

	// DisableLogging drops the debug request logger from the router.
	DisableLogging bool
}

// API type represents the API HTTP server.
type API struct {
	router    *chi.Mux
	voter     *voter.Voter
	queries   map[string]Query
	workflows *registry
	server    *http.Server
	// ctx bounds the background workflow runs; it is cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the API and starts serving it when a port is configured. A
// zero port only builds the router, which is what tests use.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Voter == nil {
		return nil, fmt.Errorf("missing voter")
	}
	if conf.MaxWorkflows == 0 {
		conf.MaxWorkflows = DefaultMaxWorkflows
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &API{
		voter:     conf.Voter,
		queries:   conf.Queries,
		workflows: newRegistry(conf.MaxWorkflows),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.initRouter(conf.DisableLogging)
	if conf.Port == 0 {
		return a, nil
	}

	addr := net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.server = &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("Starting API server", "host", conf.Host, "port", conf.Port)
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Close stops the server and every running workflow.
func (a *API) Close(ctx context.Context) error {
	a.cancel()
	a.workflows.closeAll()
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	// workflow endpoints
	log.Infow("register handler", "endpoint", WorkflowsEndpoint, "method", "POST")
	a.router.Post(WorkflowsEndpoint, a.newWorkflow)
	log.Infow("register handler", "endpoint", WorkflowEndpoint, "method", "GET")
	a.router.Get(WorkflowEndpoint, a.workflowStatus)
	log.Infow("register handler", "endpoint", WorkflowEndpoint, "method", "DELETE")
	a.router.Delete(WorkflowEndpoint, a.deleteWorkflow)
	log.Infow("register handler", "endpoint", WorkflowAdvanceEndpoint, "method", "POST")
	a.router.Post(WorkflowAdvanceEndpoint, a.advanceWorkflow)
	log.Infow("register handler", "endpoint", WorkflowRetryEndpoint, "method", "POST")
	a.router.Post(WorkflowRetryEndpoint, a.retryWorkflow)
	log.Infow("register handler", "endpoint", WorkflowCancelEndpoint, "method", "POST")
	a.router.Post(WorkflowCancelEndpoint, a.cancelWorkflow)
	// query endpoints
	log.Infow("register handler", "endpoint", QueryEndpoint, "method", "GET", "parameters", RefreshQueryParam)
	a.router.Get(QueryEndpoint, a.query)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter(disableLogging bool) {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	if !disableLogging {
		a.router.Use(requestLogger(maxRequestBodyLog, LogExcludedPrefixes...))
	}
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
