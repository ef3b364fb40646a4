// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const envPrefix = "CERBERUS"

func setupFlagSet(fs *pflag.FlagSet) {
	fs.StringP("file", "f", "", "the configuration file to use.  Overrides the search path.")
	fs.BoolP("debug", "d", false, "enables debug logging.  Overrides configuration.")
	fs.BoolP("version", "v", false, "print version and exit")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.type", "inmem")
	v.SetDefault("store.bucket", "default")
	v.SetDefault("store.retryInterval", defaultRetryInterval)
	v.SetDefault("tickets.tgtTimeout", defaultTGTTimeout)
	v.SetDefault("tickets.stTimeout", defaultSTTimeout)
	v.SetDefault("servers.primary.address", ":6600")
	v.SetDefault("servers.health.address", ":6601")
	v.SetDefault("servers.metrics.address", ":6602")
}

// newViper returns a viper with defaults applied and environment overrides
// enabled, e.g. CERBERUS_STORE_TYPE for store.type.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readConfig loads the given file, or searches the standard locations when
// file is empty.
func readConfig(v *viper.Viper, file string) error {
	if len(file) > 0 {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(applicationName)
		v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
		v.AddConfigPath(fmt.Sprintf("$HOME/.%s", applicationName))
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func buildLogger(v *viper.Viper, debug bool) (*zap.Logger, error) {
	if debug {
		v.Set("logging.level", "DEBUG")
	}
	var c sallust.Config
	if err := v.UnmarshalKey("logging", &c, arrange.ComposeDecodeHooks(sallust.DecodeHook)); err != nil {
		return nil, err
	}
	return c.Build()
}

func setup(args []string) (*viper.Viper, *zap.Logger, error) {
	l, err := zap.NewDevelopment() // initial value
	if err != nil {
		return nil, l, fmt.Errorf("failed to create zap logger: %w", err)
	}

	fs := pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
	setupFlagSet(fs)
	if err = fs.Parse(args); err != nil {
		return nil, l, fmt.Errorf("failed to parse args: %w", err)
	}
	if printVersion, _ := fs.GetBool("version"); printVersion {
		printVersionInfo(os.Stdout)
		os.Exit(0)
	}

	v := newViper()
	file, _ := fs.GetString("file")
	if err = readConfig(v, file); err != nil {
		return v, l, err
	}

	debug, _ := fs.GetBool("debug")
	logger, err := buildLogger(v, debug)
	if err != nil {
		return v, l, err
	}
	return v, logger, nil
}

func printVersionInfo(w io.Writer) {
	fmt.Fprintf(w, "%s:\n", applicationName)
	fmt.Fprintf(w, "  version: \t%s\n", Version)
	fmt.Fprintf(w, "  go version: \t%s\n", runtime.Version())
	fmt.Fprintf(w, "  built time: \t%s\n", BuildTime)
	fmt.Fprintf(w, "  git commit: \t%s\n", GitCommit)
	fmt.Fprintf(w, "  os/arch: \t%s/%s\n", runtime.GOOS, runtime.GOARCH)
}
