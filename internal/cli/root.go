// Package cli wires opsdeck's commands to its services.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/infrastructure/awscli"
	"github.com/opsdeck/opsdeck/internal/infrastructure/awssdk"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	logJSON bool
	v       = config.New()
)

// newExecutor builds the command executor selected by the configuration.
// Tests replace it with an in-memory fake.
var newExecutor = func(cfg *config.Config) command.Executor {
	if cfg.Executor == config.ExecutorSDK {
		creds := awssdk.Credentials{Profile: cfg.Profile, RoleARN: cfg.RoleARN, ExternalID: cfg.ExternalID}
		return awssdk.NewExecutor(creds).WithTimeout(cfg.Timeout).WithLogger(logger.Default())
	}
	return awscli.NewExecutor().
		WithBinary(cfg.AWSBinary).
		WithTimeout(cfg.Timeout).
		WithLogger(logger.Default())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opsdeck",
	Short: "Operate stage environments, build jobs and chef environments",
	Long: `opsdeck drives the aws CLI, the Jenkins build server and git for the
day-to-day work of an operations team.

It allocates free stage environments, exposes every Jenkins job as a
sub-command with one flag per job parameter, queries stacks, instances,
security groups, buckets and snapshots across regions, and promotes chef
environment versions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.opsdeck.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&logJSON, "log-json", false, "log in JSON format")
	flags.String("profile", "", "aws credential profile (default: ambient credentials)")
	flags.StringSlice("regions", nil, "regions to query (default: us-east-1,us-west-2)")
	flags.String("executor", "", "aws backend: cli or sdk")
	flags.Duration("timeout", 0, "timeout of each external call")

	// Bind flags to viper
	_ = v.BindPFlag("profile", flags.Lookup("profile"))
	_ = v.BindPFlag("regions", flags.Lookup("regions"))
	_ = v.BindPFlag("executor", flags.Lookup("executor"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
}

// initConfig reads the config file and sets up logging.
func initConfig() error {
	if err := config.ReadFile(v, cfgFile); err != nil {
		return err
	}

	level, err := logger.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Level: level, JSON: logJSON, Verbose: verbose, Output: os.Stderr})
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", "path", used)
	}
	return nil
}

// loadConfig decodes and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(v)
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}
