package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/opsdeck/opsdeck/internal/app/jobs"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/infrastructure/jenkins"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// jobCacheKey is the Redis key holding the job snapshot.
const jobCacheKey = "opsdeck:jenkins:jobs"

// jenkinsCmd hands its arguments to a grammar synthesized from the build
// server's job list, so flag parsing happens there.
var jenkinsCmd = &cobra.Command{
	Use:   "jenkins <job|utility> [flags]",
	Short: "Trigger and manage Jenkins jobs; every job is a sub-command",
	Long: `Every Jenkins job is exposed as a sub-command with one flag per job
parameter. Choice parameters only accept their listed values and required
ones must be given. Jobs are only triggered with --dry-run=false.

Utilities: copy-job, delete-job, enable-job, disable-job, get-job-config,
list-all-jobs, list-jobs-without-parameters, list-disable-jobs.`,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		args, err := extractFlags(rootCmd.PersistentFlags(), args)
		if err != nil {
			return err
		}
		if err := initConfig(); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client, err := newJenkinsClient(cfg)
		if err != nil {
			return err
		}
		store, closeStore, err := newJobStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := commandContext(cmd)
		catalog := jenkins.NewCatalog(client, store, cfg.Jenkins.CacheTTL)
		registry, err := catalog.Registry(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		runner := jobs.NewRunner(client, out).
			WithWorkspace(cfg.WorkspaceDir()).
			OnChange(catalog.Invalidate)

		grammar := jobs.NewGrammar(registry, runner, out)
		grammar.SetArgs(args)
		grammar.SetErr(cmd.ErrOrStderr())
		grammar.SetIn(cmd.InOrStdin())

		err = grammar.ExecuteContext(ctx)
		var usage *jobs.UsageError
		if errors.As(err, &usage) {
			fmt.Fprint(cmd.ErrOrStderr(), usage.Usage)
		}
		return err
	},
}

// newJenkinsClient reads credentials from the ini file, when present, and
// lets configured values override them.
func newJenkinsClient(cfg *config.Config) (*jenkins.Client, error) {
	var creds jenkins.Credentials
	if path := cfg.Jenkins.ConfigFile; path != "" {
		if _, err := os.Stat(path); err == nil {
			creds, err = jenkins.LoadINI(path, cfg.Jenkins.Section)
			if err != nil {
				return nil, err
			}
		} else if cfg.Jenkins.URL == "" {
			return nil, fmt.Errorf("jenkins credentials file %s: %w", path, err)
		}
	}
	creds = creds.Merge(jenkins.Credentials{
		URL:      cfg.Jenkins.URL,
		User:     cfg.Jenkins.User,
		Password: cfg.Jenkins.Password,
	})

	client, err := jenkins.NewClient(creds)
	if err != nil {
		return nil, err
	}
	return client.WithTimeout(cfg.Timeout).WithRateLimit(cfg.Jenkins.RateLimit, 1), nil
}

func newJobStore(cfg *config.Config) (jenkins.Store, func(), error) {
	switch cfg.Jenkins.CacheBackend {
	case jenkins.BackendRedis:
		rs, err := jenkins.NewRedisStore(cfg.Jenkins.RedisURL, jobCacheKey, cfg.Jenkins.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				logger.Debug("failed to close redis client", "error", err)
			}
		}, nil
	case jenkins.BackendNone:
		return jenkins.NopStore{}, func() {}, nil
	default:
		return jenkins.FileStore{Path: cfg.Jenkins.CacheFile}, func() {}, nil
	}
}

// extractFlags sets the flags of fs found before the first positional
// argument and returns the remaining arguments in order. Everything from
// the job or utility name on, or after "--", is left to the job grammar so
// job parameters may share names with these flags.
func extractFlags(fs *pflag.FlagSet, args []string) ([]string, error) {
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || !strings.HasPrefix(arg, "-") || arg == "-" {
			rest = append(rest, args[i:]...)
			break
		}

		var f *pflag.Flag
		value, hasValue := "", false
		switch {
		case strings.HasPrefix(arg, "--"):
			var name string
			name, value, hasValue = strings.Cut(arg[2:], "=")
			f = fs.Lookup(name)
		case len(arg) == 2 && arg[0] == '-':
			f = fs.ShorthandLookup(arg[1:])
		}
		if f == nil {
			rest = append(rest, arg)
			continue
		}

		if !hasValue {
			switch {
			case f.NoOptDefVal != "":
				value = f.NoOptDefVal
			case i+1 < len(args):
				i++
				value = args[i]
			default:
				return nil, fmt.Errorf("flag needs an argument: --%s", f.Name)
			}
		}
		if err := fs.Set(f.Name, value); err != nil {
			return nil, fmt.Errorf("invalid argument %q for --%s: %w", value, f.Name, err)
		}
	}
	return rest, nil
}

func init() {
	rootCmd.AddCommand(jenkinsCmd)
}
