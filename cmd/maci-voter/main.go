package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/config"
	"github.com/vocdoni/maci-voter/log"
	"github.com/vocdoni/maci-voter/service"
	"github.com/vocdoni/maci-voter/voter"
	"github.com/vocdoni/maci-voter/workflow"
)

func main() {
	cfg, fs, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting maci-voter", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}
	retries, err := fs.GetInt("retries")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer services.Close()

	if err := run(ctx, cfg, services, args, retries); err != nil {
		log.Errorw(err, "command failed")
		services.Close()
		os.Exit(1)
	}
}

// run dispatches the command in args.
func run(ctx context.Context, cfg *config.Config, s *Services, args []string, retries int) error {
	v, wallet := s.Voter, s.Wallet()
	switch args[0] {
	case "register":
		return runWorkflow(ctx, v.Registration(wallet), retries)
	case "join":
		return runWorkflow(ctx, v.Join(wallet), retries)
	case "vote":
		if len(args) != 3 {
			return fmt.Errorf("usage: vote <option> <weight>")
		}
		option, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid option: %w", err)
		}
		weight, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid weight: %w", err)
		}
		return runWorkflow(ctx, v.Vote(wallet, option, weight), retries)
	case "status":
		if err := printStatus(ctx, v, wallet); err != nil {
			return err
		}
		balance, err := s.Contracts.Balance(ctx, s.Signer.Address())
		if err != nil {
			return err
		}
		log.Infow("wallet balance", "wallet", wallet, "wei", balance.String())
		return nil
	case "serve":
		return serve(ctx, cfg, s)
	case "keys":
		return keys(v, wallet, args[1:])
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// runWorkflow advances inst to completion, retrying recoverable failures up
// to retries times.
func runWorkflow(ctx context.Context, inst *workflow.Instance, retries int) error {
	unsubscribe := inst.Subscribe(func(s workflow.Snapshot) {
		if s.Processing {
			log.Debugw("workflow progress", "workflow", inst.Name(), "step", s.StepID,
				"subStep", s.SubStep, "progress", fmt.Sprintf("%.0f%%", s.Progress*100))
		}
	})
	defer unsubscribe()

	snap, err := inst.Advance(ctx)
	for attempt := 0; err != nil && attempt < retries; attempt++ {
		stepErr, ok := workflow.IsStepError(err)
		if !ok || !stepErr.Recoverable() {
			break
		}
		log.Warnw("retrying workflow", "workflow", inst.Name(), "step", stepErr.StepID,
			"kind", string(stepErr.Kind), "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
		}
		snap, err = inst.Retry(ctx)
	}
	if err != nil {
		if stepErr, ok := workflow.IsStepError(err); ok {
			return fmt.Errorf("%s: %s (%s)", stepErr.Title, stepErr.Message, stepErr.Detail)
		}
		return err
	}
	for _, id := range snap.Steps {
		out, _ := snap.Output(id)
		log.Infow("workflow step output", "workflow", inst.Name(), "step", id, "output", fmt.Sprintf("%+v", out))
	}
	log.Infow("workflow completed", "workflow", inst.Name())
	return nil
}

func printStatus(ctx context.Context, v *voter.Voter, wallet string) error {
	status, err := v.PollStatus(ctx)
	if err != nil {
		return err
	}
	cfg := v.Config()
	fields := map[string]any{
		"wallet":       wallet,
		"pollStart":    status.Start.String(),
		"pollEnd":      status.End.String(),
		"open":         status.Open(time.Now()),
		"stateMerged":  status.StateMerged,
		"totalSignups": status.TotalSignups,
	}
	if kp, err := v.Keys.GetKey(cfg.MACI.Hex(), wallet); err == nil && kp != nil {
		fields["votingKey"] = kp.PubKey.Serialize()
	}
	if su, err := v.Storage.SignUp(cfg.MACI.Hex(), wallet); err == nil {
		fields["stateIndex"] = su.StateIndex
	}
	if pj, err := v.Storage.PollJoin(cfg.Poll.Hex(), wallet); err == nil {
		fields["pollStateIndex"] = pj.PollStateIndex
	}
	if pollID, err := v.PollID(ctx); err == nil {
		fields["pollId"] = pollID.String()
		if n, err := v.Nonces.Get(wallet, pollID); err == nil {
			fields["nextNonce"] = n
		}
	}
	log.Monitor("poll status", fields)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, s *Services) error {
	depth, err := s.Voter.StateTreeDepth(ctx)
	if err != nil {
		log.Warnw("state tree depth unavailable, artifacts will be fetched on join", "error", err.Error())
	} else if err := service.DownloadArtifacts(ctx, s.Artifacts, cfg.Artifacts.Timeout,
		artifacts.Request{Testing: cfg.Artifacts.Testing, StateTreeDepth: depth}); err != nil {
		return fmt.Errorf("failed to download artifacts: %w", err)
	}

	pollers, err := service.NewPollers(s.Voter, s.Contracts, s.Signer.Address(), cfg.PollerIntervals())
	if err != nil {
		return err
	}
	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	apiSrv := service.NewAPI(s.Voter, pollers, cfg.API.Host, cfg.API.Port, cfg.API.DisableLogging)
	if err := apiSrv.Start(ctx); err != nil {
		return err
	}
	defer apiSrv.Stop()

	<-ctx.Done()
	log.Info("received signal, shutting down")
	return nil
}

func keys(v *voter.Voter, wallet string, args []string) error {
	contract := v.Config().MACI.Hex()
	switch {
	case len(args) == 1 && args[0] == "export":
		sk, err := v.Keys.Export(contract, wallet)
		if err != nil {
			return err
		}
		if sk == "" {
			return fmt.Errorf("no voting key stored for %s", wallet)
		}
		fmt.Println(sk)
		return nil
	case len(args) == 2 && args[0] == "import":
		kp, err := v.Keys.Import(contract, wallet, args[1])
		if err != nil {
			return err
		}
		log.Infow("voting key imported", "wallet", wallet, "pubKey", kp.PubKey.Serialize())
		return nil
	}
	return fmt.Errorf("usage: keys export | keys import <macisk.>")
}
