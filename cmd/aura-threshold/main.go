package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	parties   int
	threshold int
	verbose   bool

	// Derive flags
	dkdContext string

	// Reshare flags
	addParties    []string
	removeParties []string
	newThreshold  int

	// Simulate flags
	scenario string
	rounds   int

	rootCmd = &cobra.Command{
		Use:   "aura-threshold",
		Short: "Threshold identity coordination over a replicated session ledger",
		Long: `aura-threshold runs multi-party deterministic key derivation and
share resharing sessions in-process, with one replica per participant
gossiping ledger state over an in-memory network.`,
	}

	deriveCmd = &cobra.Command{
		Use:   "derive",
		Short: "Derive a context identity",
		Long:  `Run a full commit-reveal-aggregate derivation session and print the resulting identity`,
		RunE:  runDerive,
	}

	reshareCmd = &cobra.Command{
		Use:   "reshare",
		Short: "Reshare the group secret to a new configuration",
		Long:  `Propose, authorize, and execute a resharing session, printing the new epoch and share layout`,
		RunE:  runReshare,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Simulate adversarial and degraded scenarios",
		Long:  `Simulate protocol execution under byzantine participants or partial availability`,
		RunE:  runSimulate,
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Display protocol parameters",
		RunE:  runInfo,
	}
)

func init() {
	rootCmd.PersistentFlags().IntVarP(&parties, "parties", "N", 3, "Total number of participants")
	rootCmd.PersistentFlags().IntVarP(&threshold, "threshold", "t", 2, "Threshold value")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	deriveCmd.Flags().StringVar(&dkdContext, "context", "backup/v1", "Derivation context string")

	reshareCmd.Flags().StringSliceVar(&addParties, "add-parties", nil, "Participants to add")
	reshareCmd.Flags().StringSliceVar(&removeParties, "remove-parties", nil, "Participants to remove")
	reshareCmd.Flags().IntVar(&newThreshold, "new-threshold", 0, "New threshold (0 = unchanged)")

	simulateCmd.Flags().StringVar(&scenario, "scenario", "byzantine", "Scenario: byzantine, offline, corrupt-reshare")
	simulateCmd.Flags().IntVar(&rounds, "rounds", 10, "Number of simulation rounds")

	rootCmd.AddCommand(deriveCmd, reshareCmd, simulateCmd, infoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
