// Command logoforge generates brand logo packages from the command line and
// serves the streaming generation API.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "logoforge",
		Short:   "Brand logo package generator",
		Version: Version,
	}
	root.PersistentFlags().String("config", os.Getenv("CONFIG_FILE"), "configuration file (YAML)")
	root.PersistentFlags().Bool("debug", false, "verbose logging")

	root.AddCommand(newGenerateCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
