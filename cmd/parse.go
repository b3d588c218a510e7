package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisfind/internal/daemon"
)

var parseCmd = &cobra.Command{
	Use:     "parse <query>",
	Short:   "Show how a query is parsed, without searching",
	Example: `  ferrisfind parse "fn:vec<u8> -> option"`,
	Args:    cobra.ExactArgs(1),
	Run:     runParse,
}

var parseOutput string

func init() {
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "json", "output format: json or yaml")
}

func runParse(cmd *cobra.Command, args []string) {
	// Parsing needs no index, so the daemon is not involved.
	resp := daemon.ParseQuery(args[0])
	if err := writeStructured(os.Stdout, parseOutput, resp); err != nil {
		log.Fatal(err)
	}
	if resp.Query.Error != "" {
		os.Exit(1)
	}
}
