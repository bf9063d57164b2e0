package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var pairsFilter string

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "List Kraken asset pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pairs, err := newFetcher(cfg).ListPairs(ctx)
		if err != nil {
			return err
		}
		filter := strings.ToUpper(pairsFilter)
		for _, p := range pairs {
			if filter == "" || strings.Contains(p, filter) {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pairsCmd)
	pairsCmd.Flags().StringVar(&pairsFilter, "filter", "", "Only list pairs containing this text")
}
