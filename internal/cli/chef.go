package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/app/chef"
	"github.com/opsdeck/opsdeck/internal/cli/ui"
	"github.com/opsdeck/opsdeck/internal/infrastructure/git"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

var chefCmd = &cobra.Command{
	Use:   "chef",
	Short: "Compare and promote chef environments",
}

func newChefService(cmd *cobra.Command) (*chef.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	name := cfg.Chef.User
	if name == "" {
		name = currentUser()
	}
	keys, _ := cmd.Flags().GetStringSlice("keys")

	binder := git.NewClient().
		WithTimeout(cfg.Timeout).
		WithIdentity(cfg.Chef.User, cfg.Chef.Email).
		WithLogger(logger.Default())
	return chef.NewService(binder, chef.Config{
		RepoURL:  cfg.Chef.RepoURL,
		RepoPath: cfg.Chef.RepoPath,
		RepoName: cfg.Chef.RepoName,
		Keys:     keys,
		User:     name,
	}, cmd.OutOrStdout()), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

var chefDiffCmd = &cobra.Command{
	Use:   "diff <source> <target>",
	Short: "Show cookbook pins missing from or different in the target environment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newChefService(cmd)
		if err != nil {
			return err
		}
		section, _ := cmd.Flags().GetString("section")
		cmp, err := svc.Diff(commandContext(cmd), args[0], args[1], section)
		if err != nil {
			return err
		}

		if cmp.Delta.Empty() {
			ui.Success("no difference found")
			return nil
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), cmp.Delta, func() *ui.Table {
			t := ui.NewTable("KEY", "STATE", strings.ToUpper(args[0]), strings.ToUpper(args[1]))
			for _, k := range cmp.Delta.Missing {
				t.AddRow(k, "missing", scalarString(cmp.Source[k]), "")
			}
			for _, k := range cmp.Delta.Changed {
				t.AddRow(k, "changed", scalarString(cmp.Source[k]), scalarString(cmp.Target[k]))
			}
			return t
		})
	},
}

var chefPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Copy version attributes from one environment into others and push",
	Long: `Promote clones the environments repository, copies the version
attributes of --from into every --to environment on a new branch, merges
the branch into master and pushes. With --dry-run (the default) the push is
only validated by the remote. --to all selects every known environment.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newChefService(cmd)
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetStringSlice("to")

		res, err := svc.Promote(commandContext(cmd), from, to, dryRun(cmd))
		if err != nil {
			return err
		}
		if res.Merged {
			ui.Success("promoted " + from + " on branch " + res.Branch)
		}
		return nil
	},
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func init() {
	addOutputFlag(chefCmd)
	chefCmd.PersistentFlags().StringSlice("keys", nil, "default_attributes keys to promote (default: the version keys)")

	chefDiffCmd.Flags().String("section", "", "section to compare (default cookbook_versions)")

	chefPromoteCmd.Flags().String("from", "production", "source environment")
	chefPromoteCmd.Flags().StringSlice("to", nil, "target environments, or all")
	chefPromoteCmd.Flags().Bool("dry-run", true, "only validate the push")
	_ = chefPromoteCmd.MarkFlagRequired("to")

	chefCmd.AddCommand(chefDiffCmd, chefPromoteCmd)
	rootCmd.AddCommand(chefCmd)
}
