package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tether-ci/tether/pkg/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Print the labels of the pull request that triggered this run",
	Long: `Look up the pull request behind the current GitHub Actions run and print
its label names as a JSON array. Useful for checking which halt labels a
wait would see.`,
	RunE: runLabels,
}

func runLabels(cmd *cobra.Command, args []string) error {
	fetcher := labels.NewFetcher(os.Getenv(labels.TokenEnvVar))
	names, err := fetcher.Retrieve(cmd.Context())
	if err != nil {
		return err
	}
	if names == nil {
		names = []string{}
	}
	out, err := json.Marshal(names)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}
