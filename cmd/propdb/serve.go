// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the tables, properties and metrics of a directory over HTTP",
	Long: `Open the DB in a directory and serve:

  GET /metrics                    prometheus metrics
  GET /tables[?min=..&max=..]     live tables, optionally time-pruned
  GET /tables/{file}/properties   properties of one table`,
	PreRunE: bindFlags,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("dir", "data", "directory holding the tables")
	serveCmd.Flags().String("addr", ":8080", "address to listen on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	opts, err := loadOptions(logger)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	opts.MetricsRegisterer = reg

	dir := viper.GetString("dir")
	d, err := openDir(dir, opts)
	if err != nil {
		return err
	}
	s := &server{db: d, gather: reg, logger: logger}
	httpServer := &http.Server{
		Addr:              viper.GetString("addr"),
		Handler:           s.router(),
		ReadHeaderTimeout: time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.ListenAndServe()
	}()
	logger.Info("serving", "dir", dir, "addr", httpServer.Addr)

	select {
	case err = <-errc:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return errors.CombineErrors(err, d.Close())
}
