package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibeflow/taskvibe/internal/uds"
)

// newCallCmd forwards a raw tool call to the running daemon.
func newCallCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Call a tool on the running daemon",
		Example: `  taskvibe call get_task '{"taskId":"task_1767225600_abcdef12"}'
  taskvibe call get_task_template '{"taskType":"bug"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params any
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("arguments for %s are not valid JSON", args[0])
				}
				params = json.RawMessage(args[1])
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			var reply uds.ToolReply
			if err := c.Call(args[0], params, &reply); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if g.json {
				_, err := fmt.Fprintln(out, string(reply.Data))
				return err
			}
			_, err = fmt.Fprintln(out, reply.Text)
			return err
		},
	}
}
