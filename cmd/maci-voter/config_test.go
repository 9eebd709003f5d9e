package main

import (
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/config"
)

func TestLoadConfig(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	cfg, fs, err := loadConfig([]string{
		"--datadir", dir,
		"--web3.network", "arb-sep",
		"--pollers.status", "5s",
		"--retries", "1",
		"vote", "2", "10",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(fs.Args(), qt.DeepEquals, []string{"vote", "2", "10"})
	c.Assert(cfg.Web3.Network, qt.Equals, "arb-sep")
	c.Assert(cfg.Pollers.Status, qt.Equals, 5*time.Second)
	c.Assert(cfg.Pollers.Balance, qt.Equals, defaultBalanceInterval)
	c.Assert(cfg.Artifacts.Dir, qt.Equals, filepath.Join(dir, "artifacts"))
	c.Assert(cfg.DB.Path, qt.Equals, filepath.Join(dir, "db"))
	c.Assert(cfg.DB.Type, qt.Equals, config.DBTypePebble)

	retries, err := fs.GetInt("retries")
	c.Assert(err, qt.IsNil)
	c.Assert(retries, qt.Equals, 1)
}

func TestLoadConfigEnv(t *testing.T) {
	c := qt.New(t)
	t.Setenv("MACI_DB_TYPE", config.DBTypeMemory)
	t.Setenv("MACI_API_PORT", "9100")
	cfg, _, err := loadConfig([]string{"status"})
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.DB.Type, qt.Equals, config.DBTypeMemory)
	c.Assert(cfg.API.Port, qt.Equals, 9100)
}

func TestValidateConfigRequiresKey(t *testing.T) {
	c := qt.New(t)
	cfg, _, err := loadConfig([]string{"--datadir", t.TempDir(), "status"})
	c.Assert(err, qt.IsNil)
	c.Assert(validateConfig(cfg), qt.ErrorMatches, "private key is required.*")
}
