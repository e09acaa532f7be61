package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Kanri/common/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kanri %s\n", version.Info())
	},
}
