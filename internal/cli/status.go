package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gridmesh-network/gridmesh/internal/infra/registry"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running node's marketplace status",
	RunE:  runStatus,
}

type statusResponse struct {
	NodeID          string         `json:"node_id"`
	Version         string         `json:"version"`
	UptimeSeconds   int            `json:"uptime_seconds"`
	Registry        registry.Stats `json:"registry"`
	ResultsPending  int            `json:"results_pending"`
	PaymentsPending int            `json:"payments_pending"`
	Balance         int64          `json:"balance"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st statusResponse
	if err := apiGet("/api/status", &st); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Node:\t%s\n", st.NodeID)
	fmt.Fprintf(w, "Version:\t%s\n", st.Version)
	fmt.Fprintf(w, "Uptime:\t%ds\n", st.UptimeSeconds)
	fmt.Fprintf(w, "Known tasks:\t%d\n", st.Registry.KnownTasks)
	fmt.Fprintf(w, "Supported tasks:\t%d\n", st.Registry.SupportedTasks)
	fmt.Fprintf(w, "Active tasks:\t%d\n", st.Registry.ActiveTasks)
	fmt.Fprintf(w, "Cooling down:\t%d\n", st.Registry.CoolingDown)
	fmt.Fprintf(w, "Results pending:\t%d\n", st.ResultsPending)
	fmt.Fprintf(w, "Payments pending:\t%d\n", st.PaymentsPending)
	fmt.Fprintf(w, "Balance:\t%d\n", st.Balance)
	return w.Flush()
}
