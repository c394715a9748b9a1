package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const usage = `clustermesh runs a small in-process demo cluster of pingsvc nodes.

EXAMPLES:
  Start a 3-node demo cluster and ping it once:
    clustermesh demo --nodes 3`

var rootCmd = &cobra.Command{
	Use:   "clustermesh",
	Short: "A demo cluster node runtime built on an abstract pub/sub-with-query transport",
	Long:  usage,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
