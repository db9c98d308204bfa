package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/tracker"
)

const EnvVarPrefix = "OP_RERUN"

var (
	Skiplist = &cli.StringFlag{
		Name:    tracker.SkiplistOption,
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SKIPLIST"),
		Usage:   "File with one test identifier per line; listed tests are skipped. The file must exist when set",
	}
	Passlist = &cli.StringFlag{
		Name:    tracker.PasslistOption,
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PASSLIST"),
		Usage:   "File the identifiers of passed tests are appended to",
	}
	FlushInterval = &cli.DurationFlag{
		Name:    "flush-interval",
		Value:   tracker.DefaultFlushInterval,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FLUSH_INTERVAL"),
		Usage:   "Minimum time between two periodic passlist flushes",
	}
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Directory of the Go module to run tests in",
	}
	Packages = &cli.StringSliceFlag{
		Name:    "packages",
		Value:   cli.NewStringSlice("./..."),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGES"),
		Usage:   "Package patterns to run when no plan file is given",
	}
	Plan = &cli.StringFlag{
		Name:    "plan",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:   "Plan file listing packages and their timeouts (.yaml, .yml or .toml)",
	}
	Discovery = &cli.StringFlag{
		Name:    "discovery",
		Value:   string(runner.DiscoveryList),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DISCOVERY"),
		Usage:   fmt.Sprintf("How tests are collected: %q compiles packages with go test -list, %q parses test files", runner.DiscoveryList, runner.DiscoveryAST),
		Action: func(ctx *cli.Context, v string) error {
			return validateDiscovery(v)
		},
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   runner.DefaultGoBinary,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Default timeout of a package run. 0 keeps the go test default",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory the raw go test output of each run is stored in. Empty disables it",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Periodically log the progress of the run",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	StatusEnabled = &cli.BoolFlag{
		Name:    "status.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATUS_ENABLED"),
		Usage:   "Serve /healthz and /status while the run is in progress",
	}
	StatusAddr = &cli.StringFlag{
		Name:    "status.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATUS_ADDR"),
		Usage:   "Status server listening address",
	}
	StatusPort = &cli.IntFlag{
		Name:    "status.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATUS_PORT"),
		Usage:   "Status server listening port",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Skiplist,
	Passlist,
	FlushInterval,
	TestDir,
	Packages,
	Plan,
	Discovery,
	GoBinary,
	Timeout,
	LogDir,
	ShowProgress,
	ProgressInterval,
	StatusEnabled,
	StatusAddr,
	StatusPort,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func validateDiscovery(v string) error {
	if !runner.DiscoveryMode(v).IsValid() {
		return fmt.Errorf("discovery must be one of %q or %q, got %q", runner.DiscoveryList, runner.DiscoveryAST, v)
	}
	return nil
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
