// Command cellsync runs the reconciler process: the poller/synchronizer
// pair, the job queue worker pool, and the thin HTTP control surface,
// wired together by an internal/lifecycle.Sequence in the order spec §4.9
// names. Grounded on relayfile's cmd/relayfile/main.go: a flat,
// explicit wiring function reading everything from the environment before
// a single http.ListenAndServe call.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cellsync/reconciler/internal/config"
	"github.com/cellsync/reconciler/internal/echosuppress"
	"github.com/cellsync/reconciler/internal/httpapi"
	"github.com/cellsync/reconciler/internal/jobqueue"
	"github.com/cellsync/reconciler/internal/kv"
	"github.com/cellsync/reconciler/internal/lifecycle"
	"github.com/cellsync/reconciler/internal/lock"
	"github.com/cellsync/reconciler/internal/reconciler"
	"github.com/cellsync/reconciler/internal/remote"
	"github.com/cellsync/reconciler/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logrus.StandardLogger()

	cfg, err := config.Load(os.Getenv("CELLSYNC_CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return 2
	}

	var (
		storeClient store.Client
		kvStore     kv.Store
		remoteAPI   remote.API
		locks       *lock.Service
		marks       *echosuppress.Marks
		recon       *reconciler.Reconciler
		jobQueue    *jobqueue.Queue
		pool        *jobqueue.Pool
		ingress     *jobqueue.Ingress
		httpServer  *http.Server
		poolCancel  context.CancelFunc
	)

	// Each step's Start context is cancelled as soon as that step returns,
	// so the poller and the worker pool run on runCtx instead.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	steps := []lifecycle.Step{
		{
			Name: "store-client",
			Start: func(ctx context.Context) error {
				c, err := buildStoreClient(cfg)
				if err != nil {
					return err
				}
				storeClient = c
				return storeClient.Ping(ctx)
			},
			Stop: func(ctx context.Context) error { return storeClient.Close() },
		},
		{
			Name: "kv-client",
			Start: func(ctx context.Context) error {
				c, err := kv.BuildFromDSN(cfg.KVAddress)
				if err != nil {
					return err
				}
				kvStore = c
				return nil
			},
		},
		{
			Name: "remote-client",
			Start: func(ctx context.Context) error {
				remoteAPI = remote.NewHTTPClient(remote.HTTPClientOptions{
					BaseURL:        cfg.RemoteBaseURL,
					Range:          cfg.RemoteRange,
					Logger:         log,
					InitialBackoff: cfg.RateLimitInitialBackoff(),
					MaxBackoff:     cfg.RateLimitMaxBackoff(),
				})
				return nil
			},
		},
		{
			Name: "lock-service",
			Start: func(ctx context.Context) error {
				locks = lock.New(kvStore, lock.Options{
					LeaseTTL:    cfg.LeaseTTL(),
					RetryDelay:  cfg.LockRetryDelay(),
					MaxAttempts: cfg.LockMaxAttempts,
				})
				marks = echosuppress.New(kvStore, cfg.IgnoreMarkTTL())
				return nil
			},
		},
		{
			Name: "reconciler",
			Start: func(ctx context.Context) error {
				recon = reconciler.New(remoteAPI, storeClient, kvStore, reconciler.Options{
					PollInterval:     cfg.PollInterval(),
					OutboundDebounce: cfg.OutboundDebounce(),
					LeaseTTL:         cfg.LeaseTTL(),
					LockRetryDelay:   cfg.LockRetryDelay(),
					LockMaxAttempts:  cfg.LockMaxAttempts,
					IgnoreMarkTTL:    cfg.IgnoreMarkTTL(),
					SnapshotTTL:      cfg.SnapshotTTL(),
					OwnerID:          cfg.RemoteID,
					Logger:           log,
				})
				return recon.Start(runCtx)
			},
			Stop: func(ctx context.Context) error { recon.Stop(ctx); return nil },
		},
		{
			Name: "worker",
			Start: func(ctx context.Context) error {
				jobQueue = jobqueue.New(kvStore, 0)
				pool = jobqueue.NewPool(jobQueue, locks, marks, storeClient, recon.RequestSync, jobqueue.Options{
					Fanout: cfg.JobQueueFanout,
					Logger: log,
				})
				var poolCtx context.Context
				poolCtx, poolCancel = context.WithCancel(runCtx)
				pool.Start(poolCtx)
				return nil
			},
			Stop: func(ctx context.Context) error { poolCancel(); pool.Wait(); return nil },
		},
		{
			Name: "ingress",
			Start: func(ctx context.Context) error {
				if cfg.IngressEnabled {
					ingress = jobqueue.NewIngress(jobQueue, log)
				}
				return nil
			},
		},
		{
			Name: "http-server",
			Start: func(ctx context.Context) error {
				var ingressIface httpapi.Ingress
				if ingress != nil {
					ingressIface = ingress
				}
				server := httpapi.NewServer(recon, ingressIface, httpapi.Config{})
				mux := http.NewServeMux()
				mux.Handle("/", server)
				if ingress != nil {
					mux.Handle("/ws/edit", ingress)
				}
				httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
				go func() {
					if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.WithError(err).Error("http server failed")
					}
				}()
				return nil
			},
			Stop: func(ctx context.Context) error { return httpServer.Shutdown(ctx) },
		},
	}

	seq := lifecycle.New(steps, log)
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	startErr := seq.Start(bootCtx)
	bootCancel()
	if startErr != nil {
		log.WithError(startErr).Error("startup failed")
		return 1
	}

	log.WithField("addr", cfg.HTTPAddr).Info("cellsync reconciler started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := seq.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("shutdown completed with errors")
	}
	return 0
}

func buildStoreClient(cfg config.Config) (store.Client, error) {
	if cfg.BackendProfile == "memory" || cfg.StoreDSN == "" {
		return store.NewFake(), nil
	}
	return store.NewPostgres(cfg.StoreDSN)
}
