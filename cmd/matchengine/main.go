// Command matchengine runs one match-engine process: it owns a set of
// per-symbol order books, registers itself with the exchange, discovers its
// peers, and serves the client-facing and ME-to-ME HTTP surfaces.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/myniax1024/exchange/internal/directory"
	"github.com/myniax1024/exchange/internal/fillqueue"
	"github.com/myniax1024/exchange/internal/marketdata"
	"github.com/myniax1024/exchange/internal/matchengine"
	"github.com/myniax1024/exchange/internal/ordermanager"
	"github.com/myniax1024/exchange/internal/supervisor"
	"github.com/myniax1024/exchange/internal/synchronizer"
	"github.com/myniax1024/exchange/internal/telemetry"
	"github.com/myniax1024/exchange/internal/transport"
	"github.com/myniax1024/exchange/internal/xlog"
)

const marketDataBufferSize = 1024

type meConfig struct {
	engineID      string
	addr          string
	listenAddr    string
	metricsAddr   string
	exchangeAddr  string
	credentials   string
	peerTimeout   time.Duration
	snapshotDepth int
}

func main() {
	cfg := &meConfig{}

	root := &cobra.Command{
		Use:   "matchengine",
		Short: "Run a match engine node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.engineID, "engine-id", uuid.NewString(), "unique id this engine registers under")
	flags.StringVar(&cfg.addr, "addr", "http://127.0.0.1:9001", "address this engine advertises to peers and the exchange")
	flags.StringVar(&cfg.listenAddr, "listen", ":9001", "address to bind the HTTP server to")
	flags.StringVar(&cfg.metricsAddr, "metrics-listen", ":9091", "address to bind the Prometheus metrics server to")
	flags.StringVar(&cfg.exchangeAddr, "exchange-addr", "http://127.0.0.1:8080", "base address of the exchange")
	flags.StringVar(&cfg.credentials, "credentials", "dev-engine-secret", "credential presented when registering with the exchange")
	flags.DurationVar(&cfg.peerTimeout, "peer-timeout", 2*time.Second, "timeout for ME-to-ME RPCs")
	flags.IntVar(&cfg.snapshotDepth, "snapshot-depth", 10, "number of price levels carried in advisory book broadcasts")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *meConfig) error {
	log := xlog.New("matchengine", cfg.engineID)
	sup := supervisor.New(log)

	fills := fillqueue.New()
	sy := synchronizer.New(cfg.addr, nil, cfg.peerTimeout, log)
	eng := matchengine.New(cfg.addr, sy, fills, cfg.snapshotDepth, log)
	sy.SetLocal(eng)

	wallet := ordermanager.New()
	publisher := marketdata.New(marketDataBufferSize, log)
	eng.SetSettler(wallet)
	eng.SetExecutionSink(publisher)

	sup.Go("actor", func() error {
		eng.Run()
		return nil
	})
	sup.Go("marketdata", func() error {
		publisher.Run()
		return nil
	})

	dirClient := directory.NewClient(cfg.exchangeAddr, cfg.peerTimeout)
	if err := registerWithExchange(cfg, dirClient, log); err != nil {
		log.Warn().Err(err).Msg("could not register with exchange at startup, continuing unregistered")
	}
	if err := discoverPeers(cfg, dirClient, sy, log); err != nil {
		log.Warn().Err(err).Msg("could not discover peers at startup")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), telemetry.GinMiddleware())
	transport.NewMEServer(eng, sy, fills, wallet, publisher, log).RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.listenAddr, Handler: r}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: metricsMux}

	sup.Go("http", func() error {
		log.Info().Str("addr", cfg.listenAddr).Msg("match engine HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	sup.Go("metrics", func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-sup.Dying():
	}

	log.Info().Msg("shutting down match engine")
	eng.Stop()
	publisher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = metricsSrv.Shutdown(ctx)

	sup.Kill(nil)
	return sup.Wait()
}

func registerWithExchange(cfg *meConfig, client *directory.Client, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.peerTimeout)
	defer cancel()
	resp, err := client.RegisterME(ctx, cfg.engineID, cfg.addr, cfg.credentials)
	if err != nil {
		return err
	}
	log.Info().Str("status", resp.Status).Msg("registered with exchange")
	return nil
}

func discoverPeers(cfg *meConfig, client *directory.Client, sy *synchronizer.Synchronizer, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.peerTimeout)
	defer cancel()
	resp, err := client.Discover(ctx)
	if err != nil {
		return err
	}
	for _, addr := range resp.EngineAddresses {
		sy.AddPeer(addr)
	}
	log.Info().Int("peer_count", len(resp.EngineAddresses)).Msg("discovered peer match engines")
	return nil
}
