package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/utkarsh5026/httpsfront/pkg/engine"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the TLS engines available in this build",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ENGINE\tAVAILABLE\tALPN\tNOTE")
		for _, c := range engine.NewProvider().Capabilities() {
			fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", c.Kind, c.Available, c.ALPN, c.Reason)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}
