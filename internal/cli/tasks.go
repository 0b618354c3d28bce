package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

func init() {
	rootCmd.AddCommand(tasksCmd)
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List task advertisements known to the running node",
	RunE:  runTasks,
}

func runTasks(cmd *cobra.Command, args []string) error {
	var resp struct {
		Tasks []domain.TaskHeader `json:"tasks"`
	}
	if err := apiGet("/api/tasks", &resp); err != nil {
		return err
	}

	if len(resp.Tasks) == 0 {
		fmt.Println("No task advertisements known.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tOWNER\tADDRESS\tENV\tTTL")
	for _, h := range resp.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s:%d\t%s\t%s\n",
			h.TaskID,
			h.OwnerID,
			h.OwnerAddress, h.OwnerPort,
			h.Environment,
			h.TTL,
		)
	}
	return w.Flush()
}
