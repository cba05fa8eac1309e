// Command exchange runs the exchange process: the cluster-wide directory
// of match engines and the client registration/assignment surface.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/myniax1024/exchange/internal/directory"
	"github.com/myniax1024/exchange/internal/supervisor"
	"github.com/myniax1024/exchange/internal/telemetry"
	"github.com/myniax1024/exchange/internal/transport"
	"github.com/myniax1024/exchange/internal/xlog"
)

type exchangeConfig struct {
	listenAddr  string
	metricsAddr string
}

func main() {
	cfg := &exchangeConfig{}

	root := &cobra.Command{
		Use:   "exchange",
		Short: "Run the exchange directory and client-registration service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.listenAddr, "listen", ":8080", "address to bind the HTTP server to")
	flags.StringVar(&cfg.metricsAddr, "metrics-listen", ":8090", "address to bind the Prometheus metrics server to")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *exchangeConfig) error {
	log := xlog.New("exchange", "exchange")
	sup := supervisor.New(log)

	dir := directory.New(log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), telemetry.GinMiddleware())
	transport.NewExchangeServer(dir, log).RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.listenAddr, Handler: r}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.metricsAddr, Handler: metricsMux}

	sup.Go("http", func() error {
		log.Info().Str("addr", cfg.listenAddr).Msg("exchange HTTP server listening")
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

	log.Info().Msg("shutting down exchange")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = metricsSrv.Shutdown(ctx)

	sup.Kill(nil)
	return sup.Wait()
}
