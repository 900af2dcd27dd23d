package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsdeck/opsdeck/internal/app/allocator"
	"github.com/opsdeck/opsdeck/internal/cli/ui"
	"github.com/opsdeck/opsdeck/internal/config"
)

var slotCmd = &cobra.Command{
	Use:   "slot",
	Short: "Find free stage environments",
}

var slotAllocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Allocate the next free stage slot and write build.properties",
	Long: `Allocate scans the stage stacks of each region and picks the first gap in
the slot numbering. Only the first region is allocated; the result is
written to build.properties in the workspace for the calling pipeline.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, err := newAllocator(cmd)
		if err != nil {
			return err
		}
		res, err := svc.Allocate(commandContext(cmd), cfg.Regions)
		if err != nil {
			return err
		}
		ui.Success("region slot -> " + res.Region + ":" + res.Environment())
		return render(cmd.OutOrStdout(), outputFormat(cmd), res.Allocations, func() *ui.Table {
			t := ui.NewTable("REGION", "ENVIRONMENT", "PROPERTIES")
			t.AddRow(res.Region, res.Environment(), res.Path)
			return t
		})
	},
}

var slotSurveyCmd = &cobra.Command{
	Use:   "survey",
	Short: "Show slot usage of every region",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, svc, err := newAllocator(cmd)
		if err != nil {
			return err
		}
		survey, err := svc.Survey(commandContext(cmd), cfg.Regions)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat(cmd), survey, func() *ui.Table {
			t := ui.NewTable("REGION", "IN USE", "NEXT")
			for _, rs := range survey {
				used := make([]string, len(rs.InUse))
				for i, n := range rs.InUse {
					used[i] = strconv.Itoa(n)
				}
				next := "none"
				if rs.Free {
					next = strconv.Itoa(rs.Next)
				}
				t.AddRow(rs.Region, strings.Join(used, ","), next)
			}
			return t
		})
	},
}

func newAllocator(cmd *cobra.Command) (*config.Config, *allocator.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("parallelism") {
		cfg.Parallelism, _ = cmd.Flags().GetInt("parallelism")
	}
	svc := allocator.NewService(newExecutor(cfg), allocator.Config{
		Profile:     cfg.Profile,
		Parallelism: cfg.Parallelism,
		Workspace:   cfg.Workspace,
	})
	return cfg, svc, nil
}

func init() {
	addOutputFlag(slotCmd)
	slotCmd.PersistentFlags().Int("parallelism", 1, "regions queried at once")
	slotCmd.AddCommand(slotAllocateCmd, slotSurveyCmd)
	rootCmd.AddCommand(slotCmd)
}
