// Package commands implements the tuplectl CLI commands.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	tsclient "github.com/dantte-lp/tuplespaced/internal/client"
)

var (
	// serverAddr is the daemon's WebSocket address (host:port).
	serverAddr string

	// serverPath is the URL path the daemon serves the protocol on.
	serverPath string

	// dialTimeout bounds how long connecting to the daemon may take.
	dialTimeout time.Duration

	// outputFormat selects how `in`/`rd` render matched tuples: "table" or "json".
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "tuplectl",
	Short:         "CLI client for the tuple-space daemon",
	Long:          "tuplectl connects to a tuplespaced daemon over WebSocket to insert and read tuples.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:7070",
		"tuplespaced daemon address (host:port)")
	rootCmd.PersistentFlags().StringVar(&serverPath, "path", "/ts",
		"URL path the daemon serves the protocol on")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "dial-timeout", 5*time.Second,
		"timeout for connecting to the daemon")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", formatTable,
		"output format for matched tuples: table or json")

	rootCmd.AddCommand(outCmd())
	rootCmd.AddCommand(inCmd())
	rootCmd.AddCommand(rdCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// dial opens a connection to the configured daemon address/path.
func dial() (*tsclient.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	url := "ws://" + serverAddr + serverPath
	c, err := tsclient.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return c, nil
}
