// Command blueprint-operator runs the AVS operator runtime: one
// producer per configured service feeding a shared dispatcher, whose
// results land on an aggregating consumer, plus an x402 HTTP gateway
// for paid job invocation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tangle-network/avs-operator/aggregation"
	"github.com/tangle-network/avs-operator/cache"
	"github.com/tangle-network/avs-operator/chain"
	"github.com/tangle-network/avs-operator/checkpoint"
	"github.com/tangle-network/avs-operator/config"
	"github.com/tangle-network/avs-operator/consumer"
	"github.com/tangle-network/avs-operator/dispatcher"
	"github.com/tangle-network/avs-operator/gateway"
	"github.com/tangle-network/avs-operator/internal/applog"
	"github.com/tangle-network/avs-operator/jobcall"
	"github.com/tangle-network/avs-operator/producer"
	"github.com/tangle-network/avs-operator/quote"
)

func main() {
	app := &cli.App{
		Name:  "blueprint-operator",
		Usage: "run a Tangle AVS blueprint operator",
		Commands: []*cli.Command{
			runCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the operator runtime until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "operator.toml", Usage: "path to the operator's TOML config file"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := applog.New(applog.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	chainClient, err := chain.Dial(ctx, chain.Config{
		RPCURL: cfg.RPCURL,
		Addresses: chain.Addresses{
			Router:                 hexAddr(cfg.ChainAddresses.Router),
			MultiAssetDelegation:   hexAddr(cfg.ChainAddresses.MultiAssetDelegation),
			OperatorStatusRegistry: hexAddr(cfg.ChainAddresses.OperatorStatusRegistry),
		},
		SigningKeyHex: cfg.SigningKeyHex,
		RPCRateLimit:  rate.Limit(20),
	}, log)
	if err != nil {
		return fmt.Errorf("dial chain: %w", err)
	}
	defer chainClient.Close()

	store, err := checkpoint.Open(orDefaultDir(cfg.CheckpointDir))
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	serviceCache := cache.New(30 * time.Second)
	dispatch := dispatcher.New()
	aggSvc := aggregation.New(log)
	roster := &chainRoster{client: chainClient, cache: serviceCache, jobPolicies: jobPoliciesFrom(cfg.Gateway.JobPolicies), defaultMode: cfg.Gateway.DefaultInvocationMode}
	con := consumer.New(consumer.WrapChainClient(chainClient), roster, aggSvc, log)

	quotes := quote.New(cfg.QuoteTTL())
	counters := gateway.NewCounters(prometheus.DefaultRegisterer)

	// The gateway enqueues onto its own calls channel rather than
	// calling the dispatcher synchronously: a settled HTTP request is
	// answered 202 immediately, and its job runs through the same
	// dispatcher/consumer pipeline as chain-originated calls.
	gatewayCalls := make(chan jobcall.Call, 64)
	gatewayResults := make(chan jobcall.Result, 64)

	gwServer := gateway.NewServer(gateway.Config{
		Resolver:   roster,
		Quotes:     quotes,
		Calls:      gatewayCalls,
		Settler:    noopSettler{},
		TokenTable: tokenTableFrom(cfg.Gateway.Tokens),
		PayToAddr:  cfg.Gateway.PayToAddr,
		Counters:   counters,
	}, log)

	g, gctx := errgroup.WithContext(ctx)

	sharedResults := make(chan jobcall.Result, 64)
	g.Go(func() error {
		con.Run(gctx, sharedResults)
		return nil
	})

	g.Go(func() error {
		dispatch.Run(gctx, gatewayCalls, gatewayResults)
		return nil
	})
	g.Go(func() error { return forwardResults(gctx, gatewayResults, sharedResults) })

	// Background sweep of consumed and expired quotes.
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				quotes.Sweep(0)
			}
		}
	})

	for _, svc := range cfg.Services {
		svc := svc
		g.Go(func() error { return runService(gctx, svc, chainClient, store, dispatch, sharedResults, log) })
	}

	if cfg.Gateway.ListenAddr != "" {
		httpServer := &http.Server{Addr: cfg.Gateway.ListenAddr, Handler: gwServer}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			log.Info().Str("addr", cfg.Gateway.ListenAddr).Msg("x402 gateway listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// forwardResults copies results from in to out until in closes or ctx
// is cancelled, letting the gateway's dispatcher run share the same
// consumer as every chain-originated service pipeline.
func forwardResults(ctx context.Context, in <-chan jobcall.Result, out chan<- jobcall.Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// runService wires one service's producer -> dispatcher -> consumer
// pipeline, persisting its cursor to the checkpoint store as it goes.
func runService(ctx context.Context, svc config.Service, chainClient *chain.Client, store *checkpoint.Store, dispatch *dispatcher.Dispatcher, sharedResults chan<- jobcall.Result, log zerolog.Logger) error {
	var cursor producer.Cursor
	if pos, ok, err := store.Load(svc.ServiceID); err == nil && ok {
		cursor.Advance(pos.BlockNumber, uint(pos.LogIndex))
	}

	prod, err := producer.New(chainClient, producer.Config{
		ServiceID:    svc.ServiceID,
		StartBlock:   svc.StartBlock,
		PollInterval: time.Duration(svc.PollIntervalSec) * time.Second,
	}, cursor, log)
	if err != nil {
		return fmt.Errorf("build producer for service %d: %w", svc.ServiceID, err)
	}

	calls := make(chan jobcall.Call, 32)
	results := make(chan jobcall.Result, 32)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return prod.Run(gctx, calls) })
	g.Go(func() error {
		dispatch.Run(gctx, calls, results)
		return nil
	})
	g.Go(func() error { return forwardResults(gctx, results, sharedResults) })
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				cur := prod.Cursor()
				if err := store.Save(svc.ServiceID, checkpoint.Position{BlockNumber: cur.BlockNumber, LogIndex: uint64(cur.LogIndex)}); err != nil {
					log.Warn().Err(err).Uint64("service_id", svc.ServiceID).Msg("failed to persist checkpoint")
				}
			}
		}
	})

	return g.Wait()
}
