package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gridmesh-network/gridmesh/internal/domain"
)

func init() {
	rootCmd.AddCommand(trustCmd)
}

var trustCmd = &cobra.Command{
	Use:   "trust <peer-id>",
	Short: "Show stored trust scores for a peer",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrust,
}

func runTrust(cmd *cobra.Command, args []string) error {
	var resp struct {
		PeerID string              `json:"peer_id"`
		Scores []domain.TrustScore `json:"scores"`
	}
	if err := apiGet("/api/trust/"+args[0], &resp); err != nil {
		return err
	}

	if len(resp.Scores) == 0 {
		fmt.Printf("No trust history for peer %s.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tSCORE\tUPDATED")
	for _, s := range resp.Scores {
		fmt.Fprintf(w, "%s\t%.3f\t%s\n",
			s.Role,
			s.Score,
			s.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}
