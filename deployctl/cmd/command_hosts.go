package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List hosts with registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		hosts, err := apiClient().Hosts(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, hosts)
		}
		if len(hosts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No agents registered")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HOSTNAME\tAGENT\tSTATUS\tHEALTHY\tLAST SEEN")
		for _, h := range hosts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s ago\n",
				h.Hostname, h.AgentID, h.AgentStatus, h.Healthy, time.Since(h.LastSeen).Round(time.Second))
		}
		return w.Flush()
	},
}

func registerHostsCommand(root *cobra.Command) {
	root.AddCommand(hostsCmd)
}
