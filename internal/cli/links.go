package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeJamon/xrpl-interceptor/internal/arbiter"
	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// linksCmd prints the links the run command would establish
var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Show the peer links derived from the topology",
	Long: `Resolve the configured topology and print every node pair the
interceptor would link, with the number of relay loops it would run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var client *arbiter.Client
		if cfg.Controller.FetchTopology {
			client, err = arbiter.NewClient(cfg.ClientConfig(), zap.NewNop())
			if err != nil {
				return err
			}
			defer client.Close()
		}

		nodes, _, err := resolveTopology(cmd.Context(), cfg, client)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Nodes: %d  Links: %d  Relay tasks: %d\n\n",
			len(nodes), topology.LinkCount(len(nodes)), topology.RelayTaskCount(len(nodes)))

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LINK\tNODE A\tNODE B\tA SEES KEY\tB SEES KEY")
		for _, p := range topology.Pairs(nodes) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				p.ID(), p.A.Endpoint(), p.B.Endpoint(), p.B.PublicKey, p.A.PublicKey)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(linksCmd)
}
