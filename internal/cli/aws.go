package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/app/query"
	"github.com/opsdeck/opsdeck/internal/cli/ui"
	"github.com/opsdeck/opsdeck/internal/config"
	"github.com/opsdeck/opsdeck/internal/domain/command"
	"github.com/opsdeck/opsdeck/internal/pkg/casing"
)

var awsCmd = &cobra.Command{
	Use:   "aws",
	Short: "Query and change stage resources across regions",
}

// newQuery builds the query service and the single region a command
// targets: --region, else the first configured region.
func newQuery(cmd *cobra.Command) (*config.Config, *query.Service, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, "", err
	}
	region, _ := cmd.Flags().GetString("region")
	if region == "" {
		region = cfg.Regions[0]
	}
	return cfg, query.NewService(newExecutor(cfg), cfg.Profile), region, nil
}

func dryRun(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool("dry-run")
	return err != nil || v
}

// confirmed asks before a destructive call unless it is a dry run or --yes
// was given.
func confirmed(cmd *cobra.Command, question string) bool {
	if dryRun(cmd) {
		return true
	}
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true
	}
	return ui.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), question, false)
}

func addMutationFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", true, "check the change without applying it")
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var awsStacksCmd = &cobra.Command{
	Use:   "stacks [filter]",
	Short: "List stage stacks per region, or the stacks whose name contains filter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)

		var stacks map[string][]string
		if len(args) == 1 {
			names, err := svc.StacksForStage(ctx, region, args[0])
			if err != nil {
				return err
			}
			stacks = map[string][]string{region: names}
		} else if stacks, err = svc.StackNames(ctx, cfg.Regions); err != nil {
			return err
		}

		return render(cmd.OutOrStdout(), outputFormat(cmd), stacks, func() *ui.Table {
			t := ui.NewTable("REGION", "STACK")
			for _, r := range sortedKeys(stacks) {
				for _, name := range stacks[r] {
					t.AddRow(r, name)
				}
			}
			return t
		})
	},
}

var awsStackEventsCmd = &cobra.Command{
	Use:   "stack-events <stack>",
	Short: "Show the event log of a stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		events, err := svc.StackEvents(commandContext(cmd), region, args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), events, func() *ui.Table {
			t := ui.NewTable("TIME", "RESOURCE", "STATUS", "REASON")
			for _, e := range events {
				t.AddRow(e.Timestamp.Format("2006-01-02 15:04:05"), e.LogicalResourceID, e.ResourceStatus, e.ResourceStatusReason)
			}
			return t
		})
	},
}

var awsStackParamsCmd = &cobra.Command{
	Use:   "stack-params [environment]",
	Short: "Show stack parameters per region, optionally for one environment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, _, err := newQuery(cmd)
		if err != nil {
			return err
		}
		environ := ""
		if len(args) == 1 {
			environ = args[0]
		}
		params, err := svc.StackParameters(commandContext(cmd), cfg.Regions, environ)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), params, func() *ui.Table {
			t := ui.NewTable("REGION", "STACK", "KEY", "VALUE")
			for _, r := range sortedKeys(params) {
				for _, stack := range sortedKeys(params[r]) {
					for _, k := range sortedKeys(params[r][stack]) {
						t.AddRow(r, stack, k, params[r][stack][k])
					}
				}
			}
			return t
		})
	},
}

var awsCreateStackCmd = &cobra.Command{
	Use:   "create-stack <name>",
	Short: "Create a CloudFormation stack",
	Long: `Create a CloudFormation stack. CloudFormation has no dry-run mode, so
with --dry-run (the default) the command that would run is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		opts := command.Options{command.Opt("stack_name", args[0])}
		for _, name := range []string{"template-url", "template-body", "parameters", "capabilities", "tags"} {
			if val, _ := cmd.Flags().GetString(name); val != "" {
				opts = append(opts, command.Opt(strings.ReplaceAll(name, "-", "_"), val))
			}
		}
		if path, _ := cmd.Flags().GetString("template-file"); path != "" {
			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read template: %w", err)
			}
			opts = append(opts, command.Opt("template_body", string(body)))
		}

		id, err := svc.CreateStack(commandContext(cmd), region, opts, dryRun(cmd))
		if line, ok := command.WouldExecute(err); ok {
			printf(cmd.OutOrStdout(), "would execute: %s\n", line)
			return nil
		}
		if err != nil {
			return err
		}
		printf(cmd.OutOrStdout(), "%s\n", id)
		return nil
	},
}

var awsPlayASGsCmd = &cobra.Command{
	Use:   "play-asgs <environment>",
	Short: "List the play autoscaling groups of an environment with their instances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		only, _ := cmd.Flags().GetBool("only-play")
		ctx := commandContext(cmd)
		groups, err := svc.PlayASGs(ctx, region, args[0], only)
		if err != nil {
			return err
		}

		if withHosts, _ := cmd.Flags().GetBool("hosts"); withHosts {
			hosts, err := svc.InstanceHostnames(ctx, region, groups)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), outputFormat(cmd), hosts, func() *ui.Table {
				return hostTable(hosts)
			})
		}

		return render(cmd.OutOrStdout(), outputFormat(cmd), groups, func() *ui.Table {
			t := ui.NewTable("GROUP", "INSTANCES")
			for _, g := range sortedKeys(groups) {
				t.AddRow(g, strings.Join(groups[g], ","))
			}
			return t
		})
	},
}

func hostTable(hosts []query.Host) *ui.Table {
	t := ui.NewTable("NAME", "INSTANCE", "PUBLIC DNS", "PUBLIC IP")
	for _, h := range hosts {
		t.AddRow(h.Name, h.InstanceID, h.PublicDNS, h.PublicIP)
	}
	return t
}

var awsHostsCmd = &cobra.Command{
	Use:   "hosts [stage]",
	Short: "List named instances per region, optionally only those of a stage",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, _, err := newQuery(cmd)
		if err != nil {
			return err
		}
		stage := ""
		if len(args) == 1 {
			stage = args[0]
		}
		hosts, err := svc.HostsForStage(commandContext(cmd), cfg.Regions, stage)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), hosts, func() *ui.Table {
			t := ui.NewTable("REGION", "NAME", "PUBLIC DNS", "PUBLIC IP")
			for _, r := range sortedKeys(hosts) {
				for _, name := range sortedKeys(hosts[r]) {
					h := hosts[r][name]
					t.AddRow(r, name, h.PublicDNS, h.PublicIP)
				}
			}
			return t
		})
	},
}

var awsSecurityGroupsCmd = &cobra.Command{
	Use:   "security-groups [prefix]",
	Short: "List security group names per region",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, _, err := newQuery(cmd)
		if err != nil {
			return err
		}
		kind, _ := cmd.Flags().GetString("kind")
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		groups, err := svc.SecurityGroups(commandContext(cmd), query.GroupKind(kind), cfg.Regions, prefix)
		if err != nil {
			return err
		}
		return renderRegionList(cmd, groups, "GROUP")
	},
}

func renderRegionList(cmd *cobra.Command, byRegion map[string][]string, column string) error {
	return render(cmd.OutOrStdout(), outputFormat(cmd), byRegion, func() *ui.Table {
		t := ui.NewTable("REGION", column)
		for _, r := range sortedKeys(byRegion) {
			for _, name := range byRegion[r] {
				t.AddRow(r, name)
			}
		}
		return t
	})
}

var awsDeleteSecurityGroupsCmd = &cobra.Command{
	Use:   "delete-security-groups <stage>",
	Short: "Delete the EC2 security groups of a stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, _, err := newQuery(cmd)
		if err != nil {
			return err
		}
		if !confirmed(cmd, fmt.Sprintf("delete security groups of %s in %s?", args[0], strings.Join(cfg.Regions, ","))) {
			return errors.New("aborted")
		}
		deleted, err := svc.DeleteSecurityGroups(commandContext(cmd), cfg.Regions, args[0], dryRun(cmd))
		if err != nil {
			return err
		}
		if dryRun(cmd) {
			ui.Info("dry run: nothing was deleted")
		}
		return renderRegionList(cmd, deleted, "GROUP")
	},
}

var awsRevokeIngressCmd = &cobra.Command{
	Use:   "revoke-ingress <stage>",
	Short: "Revoke every CIDR ingress rule of a stage's security groups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, _, err := newQuery(cmd)
		if err != nil {
			return err
		}
		if !confirmed(cmd, fmt.Sprintf("revoke ingress rules of %s in %s?", args[0], strings.Join(cfg.Regions, ","))) {
			return errors.New("aborted")
		}
		revoked, err := svc.RevokeIngressRules(commandContext(cmd), cfg.Regions, args[0], dryRun(cmd))
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), revoked, func() *ui.Table {
			t := ui.NewTable("REGION", "GROUP", "PROTOCOL", "PORT", "CIDR")
			for _, r := range sortedKeys(revoked) {
				for _, rule := range revoked[r] {
					t.AddRow(r, rule.Group, rule.Protocol, strconv.Itoa(rule.Port), rule.CIDR)
				}
			}
			return t
		})
	},
}

var awsBucketsCmd = &cobra.Command{
	Use:   "buckets [filter]",
	Short: "List buckets whose name contains filter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		filter := ""
		if len(args) == 1 {
			filter = args[0]
		}
		buckets, err := svc.Buckets(commandContext(cmd), region, filter)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), buckets, func() *ui.Table {
			t := ui.NewTable("BUCKET", "CREATED")
			for _, b := range buckets {
				t.AddRow(b.Name, b.CreationDate.Format("2006-01-02 15:04:05"))
			}
			return t
		})
	},
}

var awsBucketTagsCmd = &cobra.Command{
	Use:   "bucket-tags <bucket> [key=value]",
	Short: "Show the tags of a bucket, or replace its tag set with one tag",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)

		if len(args) == 2 {
			key, value, ok := strings.Cut(args[1], "=")
			if !ok || key == "" {
				return fmt.Errorf("expected key=value, got %q", args[1])
			}
			err := svc.TagBucket(ctx, region, args[0], key, value, dryRun(cmd))
			if line, ok := command.WouldExecute(err); ok {
				printf(cmd.OutOrStdout(), "would execute: %s\n", line)
				return nil
			}
			return err
		}

		tags, err := svc.BucketTags(ctx, region, args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), tags, func() *ui.Table {
			t := ui.NewTable("KEY", "VALUE")
			for _, k := range sortedKeys(tags) {
				t.AddRow(k, tags[k])
			}
			return t
		})
	},
}

var awsBackupSetsCmd = &cobra.Command{
	Use:   "backup-sets <envroot> [owner]",
	Short: "List backup buckets with their OWNER and UPDATED tags",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		owner := ""
		if len(args) == 2 {
			owner = args[1]
		}
		sets, err := svc.BackupSets(commandContext(cmd), region, args[0], owner)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), sets, func() *ui.Table {
			t := ui.NewTable("BUCKET", "OWNER", "UPDATED")
			for _, s := range sets {
				t.AddRow(s.Bucket, s.Owner, s.Updated)
			}
			return t
		})
	},
}

var awsArtifactVersionsCmd = &cobra.Command{
	Use:   "artifact-versions",
	Short: "List artifact versions stored in the deployment bucket, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		p := query.DefaultArtifactPath
		if b, _ := cmd.Flags().GetString("bucket"); b != "" {
			p.Bucket = b
		}
		if k, _ := cmd.Flags().GetString("key"); k != "" {
			p.Key = k
		}
		if k, _ := cmd.Flags().GetString("kind"); k != "" {
			p.Kind = k
		}
		p.Branch, _ = cmd.Flags().GetString("branch")

		versions, err := svc.ArtifactVersions(commandContext(cmd), region, p)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), versions, func() *ui.Table {
			t := ui.NewTable("VERSION")
			for _, v := range versions {
				t.AddRow(v)
			}
			return t
		})
	},
}

var awsSnapshotsCmd = &cobra.Command{
	Use:   "snapshots [prefix]",
	Short: "List database snapshots newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		ctx := commandContext(cmd)

		snapshots, err := svc.SortedSnapshots(ctx, region, prefix)
		if err != nil {
			return err
		}
		if latest, _ := cmd.Flags().GetBool("latest"); latest {
			if len(snapshots) == 0 {
				return fmt.Errorf("no snapshot matches %q: %w", prefix, query.ErrNotFound)
			}
			snapshots = snapshots[:1]
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), snapshots, func() *ui.Table {
			t := ui.NewTable("SNAPSHOT", "INSTANCE", "STATUS", "TYPE", "CREATED")
			for _, s := range snapshots {
				t.AddRow(s.Identifier, s.Instance, s.Status, s.SnapshotType, s.SnapshotCreateTime.Format("2006-01-02 15:04:05"))
			}
			return t
		})
	},
}

var awsWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the configured credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, region, err := newQuery(cmd)
		if err != nil {
			return err
		}
		id, err := svc.WhoAmI(commandContext(cmd), region)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), id, func() *ui.Table {
			t := ui.NewTable("ACCOUNT", "ARN", "USER ID")
			t.AddRow(id.AccountID, id.ARN, id.UserID)
			return t
		})
	},
}

var awsExecCmd = &cobra.Command{
	Use:   "exec <service> <operation> [name=value ...]",
	Short: "Run one allow-listed operation and print its JSON output",
	Long: `Run one allow-listed operation. Options are given as name=value pairs,
a bare name is passed as a flag without value. Mutating operations honour
--dry-run, which defaults to true.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		region, _ := cmd.Flags().GetString("region")
		if region == "" {
			region = cfg.Regions[0]
		}

		req := command.Request{
			Service:   command.Service(args[0]),
			Operation: args[1],
			Region:    region,
			Profile:   cfg.Profile,
			DryRun:    dryRun(cmd),
		}
		for _, kv := range args[2:] {
			name, value, _ := strings.Cut(kv, "=")
			req.Options = append(req.Options, command.Opt(strings.TrimPrefix(name, "--"), value))
		}
		if q, _ := cmd.Flags().GetString("query"); q != "" {
			req.Options = append(req.Options, command.Opt("query", q))
		}

		doc, err := newExecutor(cfg).Execute(commandContext(cmd), req)
		if line, ok := command.WouldExecute(err); ok {
			printf(cmd.OutOrStdout(), "would execute: %s\n", line)
			return nil
		}
		if err != nil {
			return err
		}
		if snake, _ := cmd.Flags().GetBool("snake-keys"); snake {
			doc = casing.NormalizeKeys(doc)
		}

		format := outputFormat(cmd)
		if format == formatTable {
			format = formatJSON
		}
		return render(cmd.OutOrStdout(), format, doc, nil)
	},
}

func init() {
	addOutputFlag(awsCmd)
	awsCmd.PersistentFlags().String("region", "", "region of single-region commands (default: first configured region)")

	addMutationFlags(awsCreateStackCmd)
	awsCreateStackCmd.Flags().String("template-url", "", "S3 URL of the template")
	awsCreateStackCmd.Flags().String("template-body", "", "template document")
	awsCreateStackCmd.Flags().String("template-file", "", "read the template body from a file")
	awsCreateStackCmd.Flags().String("parameters", "", "stack parameters, shorthand or JSON")
	awsCreateStackCmd.Flags().String("capabilities", "", "space separated capabilities")
	awsCreateStackCmd.Flags().String("tags", "", "stack tags, shorthand or JSON")

	awsPlayASGsCmd.Flags().Bool("only-play", false, "skip cron and admin groups")
	awsPlayASGsCmd.Flags().Bool("hosts", false, "list the instances' host names instead")

	awsSecurityGroupsCmd.Flags().String("kind", string(query.GroupKindEC2), "ec2, rds or elasticache")

	addMutationFlags(awsDeleteSecurityGroupsCmd)
	addMutationFlags(awsRevokeIngressCmd)
	addMutationFlags(awsBucketTagsCmd)

	awsArtifactVersionsCmd.Flags().String("bucket", "", "deployment bucket (default "+query.DefaultArtifactPath.Bucket+")")
	awsArtifactVersionsCmd.Flags().String("key", "", "top-level key (default "+query.DefaultArtifactPath.Key+")")
	awsArtifactVersionsCmd.Flags().String("kind", "", "artifact kind (default "+query.DefaultArtifactPath.Kind+")")
	awsArtifactVersionsCmd.Flags().String("branch", "", "branch folder")

	awsSnapshotsCmd.Flags().Bool("latest", false, "only the newest snapshot")

	addMutationFlags(awsExecCmd)
	awsExecCmd.Flags().String("query", "", "JMESPath expression applied to the output")
	awsExecCmd.Flags().Bool("snake-keys", false, "convert CamelCase keys to snake_case")

	awsCmd.AddCommand(
		awsStacksCmd,
		awsStackEventsCmd,
		awsStackParamsCmd,
		awsCreateStackCmd,
		awsPlayASGsCmd,
		awsHostsCmd,
		awsSecurityGroupsCmd,
		awsDeleteSecurityGroupsCmd,
		awsRevokeIngressCmd,
		awsBucketsCmd,
		awsBucketTagsCmd,
		awsBackupSetsCmd,
		awsArtifactVersionsCmd,
		awsSnapshotsCmd,
		awsWhoamiCmd,
		awsExecCmd,
	)
	rootCmd.AddCommand(awsCmd)
}
