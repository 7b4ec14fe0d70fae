// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/khushmanvar/propdb"
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "propdb",
	Short: "inspect propdb tables and their collected properties",
	Long: `propdb inspects the tables of a propdb directory.

Flags can also be set through environment variables named PROPDB_<flag>,
e.g. PROPDB_LOG_LEVEL=debug. Variables are read from .env and .env.local
in the working directory.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("options", "", "YAML options file used when opening a directory")

	rootCmd.AddCommand(propertiesCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig loads env files and binds environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("propdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags binds the flags of cmd, including the inherited persistent
// flags, to viper.
func bindFlags(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// loadOptions returns the DB options from the options file, if any, with
// the given logger.
func loadOptions(logger *slog.Logger) (*propdb.Options, error) {
	opts := &propdb.Options{}
	if path := viper.GetString("options"); path != "" {
		var err error
		if opts, err = propdb.LoadOptions(path); err != nil {
			return nil, err
		}
	}
	opts.Logger = base.SlogLogger{L: logger}
	return opts, nil
}

// openDir opens the DB in dir. Unlike propdb.Open, it fails rather than
// create a directory that does not exist.
func openDir(dir string, opts *propdb.Options) (*propdb.DB, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dir)
	}
	if !st.IsDir() {
		return nil, errors.Newf("opening %s: not a directory", dir)
	}
	return propdb.Open(dir, opts)
}
