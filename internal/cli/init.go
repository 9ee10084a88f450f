package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibeflow/taskvibe/internal/setup"
)

func newInitCmd(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize taskvibe in the project directory",
		Long:  "Creates a .taskvibe/ folder with config.yaml, the default workflow and the task store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := setup.Run(g.dir, name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Initialized taskvibe in", base)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Adjust .taskvibe/workflow.yaml to your statuses and templates")
			fmt.Fprintln(out, "  2. Run: taskvibe task create --title \"...\" --type feature")
			fmt.Fprintln(out, "  3. Register `taskvibe mcp` with your agent, or run `taskvibe serve`")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to the directory name)")
	return cmd
}
