// Command catlimport replays a ledger stream fixture into a new CATL v2
// file, optionally exposing prometheus metrics on an HTTP endpoint.
//
// Usage:
//
//	catlimport --in <fixture> --out <file> --network-id N [--metrics-addr host:port]
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"github.com/xahau/catl2/catl2"
	"github.com/xahau/catl2/catlimport"
	"github.com/xahau/catl2/catlv1"
	"github.com/xahau/catl2/log"
)

func main() {
	app := &cli.App{
		Name:  "catlimport",
		Usage: "import a ledger stream fixture into a CATL v2 file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Required: true, Usage: "input fixture path"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "output CATL v2 file path"},
			&cli.Uint64Flag{Name: "network-id", Value: 0, Usage: "network identifier stamped into the file header"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus metrics on this address"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "catlimport:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.Default().Module("catlimport")

	in, err := os.Open(c.String("in"))
	if err != nil {
		return err
	}
	defer in.Close()

	src, err := catlv1.ReadTextFixture(in)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := catl2.Create(c.String("out"), uint32(c.Uint64("network-id")), catl2.WithLogger(logger))
	if err != nil {
		return err
	}

	var metrics *catlimport.Metrics
	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		metrics = catlimport.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	importer := catlimport.New(src, w, catlimport.WithLogger(logger), catlimport.WithMetrics(metrics))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return importer.Run(ctx)
}
