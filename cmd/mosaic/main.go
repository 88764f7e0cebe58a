package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "mosaic"}

	root.AddCommand(serveCMD(), migrateCMD(), backfillCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
