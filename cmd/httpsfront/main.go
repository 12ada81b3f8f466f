// httpsfront serves HTTP/1.1 and HTTP/2 behind mutual TLS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "httpsfront",
	Short: "HTTPS front end with mutual TLS and ALPN",
	Long: `httpsfront accepts TLS connections, authenticates peers with client
certificates and negotiates HTTP/1.1 or HTTP/2 before any request reaches
a handler.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
