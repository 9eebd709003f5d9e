// Package rpc provides a multi-endpoint Ethereum JSON-RPC client. Calls are
// retried on the same endpoint and then on the next one; failures are
// returned as types.BoundaryError carrying a network, timeout, wallet or
// unknown code.
package rpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vocdoni/maci-voter/log"
)

// Web3Pool holds the endpoints of a single chain.
type Web3Pool struct {
	chainID   uint64
	endpoints *Web3Iterator
}

// NewWeb3Pool returns an empty pool for chainID. A zero chainID is taken
// from the first endpoint added.
func NewWeb3Pool(chainID uint64) *Web3Pool {
	return &Web3Pool{chainID: chainID, endpoints: NewWeb3Iterator()}
}

// AddEndpoint dials uri and adds it to the pool after checking it serves
// the expected chain.
func (p *Web3Pool) AddEndpoint(ctx context.Context, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return fmt.Errorf("empty endpoint")
	}
	dialCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, uri)
	if err != nil {
		return wrap("dial "+uri, err)
	}
	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return wrap("chain id of "+uri, err)
	}
	if p.chainID == 0 && p.NumberOfEndpoints(false) == 0 {
		p.chainID = chainID.Uint64()
	}
	if chainID.Uint64() != p.chainID {
		client.Close()
		return fmt.Errorf("endpoint %s serves chain %d, expected %d", uri, chainID.Uint64(), p.chainID)
	}
	p.endpoints.Add(&Web3Endpoint{URI: uri, client: client})
	log.Infow("web3 endpoint added", "uri", uri, "chainID", p.chainID)
	return nil
}

// Endpoint returns the next endpoint in rotation.
func (p *Web3Pool) Endpoint() (*Web3Endpoint, error) {
	return p.endpoints.Next()
}

// DisableEndpoint takes uri out of rotation for a cooldown period.
func (p *Web3Pool) DisableEndpoint(uri string) {
	p.endpoints.Disable(uri)
}

// NumberOfEndpoints returns the available endpoints, or all of them when
// onlyAvailable is false.
func (p *Web3Pool) NumberOfEndpoints(onlyAvailable bool) int {
	if onlyAvailable {
		return p.endpoints.Available()
	}
	return p.endpoints.Available() + p.endpoints.Disabled()
}

// ChainID returns the chain served by the pool.
func (p *Web3Pool) ChainID() uint64 { return p.chainID }

// Client returns a client balancing calls over the pool.
func (p *Web3Pool) Client() *Client {
	return &Client{w3p: p, chainID: p.chainID}
}
