package main

import (
	"context"
	"fmt"

	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/config"
	"github.com/vocdoni/maci-voter/crypto/signatures/ethereum"
	"github.com/vocdoni/maci-voter/db"
	"github.com/vocdoni/maci-voter/db/encrypteddb"
	"github.com/vocdoni/maci-voter/db/inmemory"
	"github.com/vocdoni/maci-voter/db/pebbledb"
	"github.com/vocdoni/maci-voter/db/prefixeddb"
	"github.com/vocdoni/maci-voter/identity"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/prover"
	"github.com/vocdoni/maci-voter/storage"
	"github.com/vocdoni/maci-voter/voter"
	"github.com/vocdoni/maci-voter/web3"
)

// Services holds everything a command needs.
type Services struct {
	Signer    *ethereum.Signer
	Contracts *web3.Contracts
	Storage   *storage.Storage
	Artifacts *artifacts.Fetcher
	Voter     *voter.Voter
}

// Wallet returns the address of the configured wallet.
func (s *Services) Wallet() string {
	return s.Signer.Address().Hex()
}

// Close releases the local store.
func (s *Services) Close() {
	if s.Storage != nil {
		s.Storage.Close()
	}
}

// openDatabase opens the configured backend, namespaced by chain id and
// encrypted when a passphrase is set.
func openDatabase(cfg *config.Config) (db.Database, error) {
	var (
		database db.Database
		err      error
	)
	switch cfg.DB.Type {
	case config.DBTypeMemory:
		database, err = inmemory.New(db.Options{})
	default:
		database, err = pebbledb.New(db.Options{Path: cfg.DB.Path})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.DB.Type, err)
	}
	if cfg.DB.Passphrase != "" {
		enc, err := encrypteddb.New(database, cfg.DB.Passphrase)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		database = enc
	}
	return prefixeddb.NewPrefixedDatabase(database, fmt.Appendf(nil, "chain/%d/", cfg.Web3.ChainID)), nil
}

// artifactSources returns the S3 mirror, when enabled, followed by the
// HTTP base URL.
func artifactSources(ctx context.Context, cfg *config.Config) ([]artifacts.Source, error) {
	var sources []artifacts.Source
	if cfg.Artifacts.S3.Enabled {
		s3src, err := artifacts.NewS3Source(ctx, cfg.S3SourceConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 artifacts source: %w", err)
		}
		sources = append(sources, s3src)
	}
	if cfg.Artifacts.BaseURL != "" {
		httpSrc, err := artifacts.NewHTTPSource(cfg.Artifacts.BaseURL)
		if err != nil {
			return nil, err
		}
		sources = append(sources, httpSrc)
	}
	return sources, nil
}

// setupServices initializes the store, the chain gateway and the voter.
func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	signer, err := ethereum.NewSignerFromHex(cfg.Web3.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	services.Signer = signer

	log.Infow("initializing storage", "type", cfg.DB.Type, "path", cfg.DB.Path, "encrypted", cfg.DB.Passphrase != "")
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	services.Storage = storage.New(database)

	log.Info("initializing web3 contracts")
	services.Contracts, err = web3.New(ctx, cfg.Web3.ChainID, cfg.Web3.RPC, cfg.Addresses(), signer)
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to initialize web3 client: %w", err)
	}
	log.Infow("contracts initialized",
		"chainId", services.Contracts.ChainID().String(),
		"account", services.Contracts.AccountAddress().Hex())

	sources, err := artifactSources(ctx, cfg)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Artifacts, err = artifacts.New(cfg.ArtifactsFetcherConfig(), sources...)
	if err != nil {
		services.Close()
		return nil, err
	}

	services.Voter = voter.New(cfg.VoterConfig(), voter.Deps{
		Gateway:    services.Contracts,
		Artifacts:  services.Artifacts,
		Prover:     prover.NewJoinProver(services.Contracts, prover.Rapidsnark, true),
		Storage:    services.Storage,
		Identities: identity.NewDeriver(services.Storage, signer, cfg.Identity.Message),
	})
	return services, nil
}
