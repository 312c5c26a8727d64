package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Environment variables read as flag defaults. A .env file in the working
// directory is loaded first.
const (
	envConfig      = "HIE_CONFIG"
	envDelta       = "HIE_DELTA"
	envAddrFile    = "HIE_IPS"
	envMetricsAddr = "HIE_METRICS_ADDR"
	envAdminAddr   = "HIE_ADMIN_ADDR"
	envFeedAddr    = "HIE_FEED_ADDR"
	envLogFile     = "HIE_LOG_FILE"
)

var errNoConfig = errors.New("a config file is required (-config)")

// options is the parsed command line.
type options struct {
	ConfigPath  string
	Delta       optionalMillis
	AddrFile    string
	ClientMode  bool
	Verbosity   int
	MetricsAddr string
	AdminAddr   string
	FeedAddr    string
	LogFile     string
}

// optionalMillis is a millisecond count that remembers whether it was set.
type optionalMillis struct {
	set bool
	d   time.Duration
}

func (m *optionalMillis) String() string {
	if !m.set {
		return ""
	}
	return strconv.FormatInt(m.d.Milliseconds(), 10)
}

func (m *optionalMillis) Set(s string) error {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid milliseconds %q", s)
	}
	m.set = true
	m.d = time.Duration(ms) * time.Millisecond
	return nil
}

// verbosity counts repeated -v flags. -v=N sets the level directly.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	switch s {
	case "true":
		*v++
		return nil
	case "false":
		*v = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid verbosity %q", s)
	}
	*v = verbosity(n)
	return nil
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.ConfigPath, "config", os.Getenv(envConfig), "Replica config file (.json, .toml, .yaml, .dat)")
	fs.Var(&o.Delta, "delta", "Round timeout override in milliseconds")
	fs.StringVar(&o.AddrFile, "ip", os.Getenv(envAddrFile), "Newline-delimited replica address file")
	fs.BoolVar(&o.ClientMode, "s", false, "Deliver blocks only to contributing clients")
	v := verbosity(0)
	fs.Var(&v, "v", "Increase log verbosity (repeatable)")
	fs.StringVar(&o.MetricsAddr, "metrics", os.Getenv(envMetricsAddr), "Prometheus metrics address (empty = disabled)")
	fs.StringVar(&o.AdminAddr, "admin", os.Getenv(envAdminAddr), "gRPC health address (empty = disabled)")
	fs.StringVar(&o.FeedAddr, "feed", os.Getenv(envFeedAddr), "ZeroMQ block feed endpoint (empty = disabled)")
	fs.StringVar(&o.LogFile, "log-file", os.Getenv(envLogFile), "Rotated JSON log file (empty = stderr only)")

	if d := os.Getenv(envDelta); d != "" {
		if err := o.Delta.Set(d); err != nil {
			return o, fmt.Errorf("%s: %w", envDelta, err)
		}
	}

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.Verbosity = int(v)

	if o.ConfigPath == "" {
		return o, errNoConfig
	}
	return o, nil
}
