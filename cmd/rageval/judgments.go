package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiengineer/rageval/internal/evaluation"
	"github.com/aiengineer/rageval/internal/judgments"
)

func judgmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "judgments",
		Short: "Manage stored ground-truth judgments",
	}
	cmd.AddCommand(judgmentsLoadCmd(), judgmentsListCmd())
	return cmd
}

func openStore(cmd *cobra.Command) (judgments.Store, error) {
	appCfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return judgments.New(cmd.Context(), judgments.Config{
		Type:       appCfg.Judgments.Type,
		RedisURL:   appCfg.Judgments.RedisURL,
		KeyPrefix:  appCfg.Judgments.KeyPrefix,
		SQLitePath: appCfg.Judgments.SQLitePath,
	})
}

func judgmentsLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load DATASET",
		Short: "Copy a dataset's relevant IDs into the configured judgments store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := evaluation.LoadDataset(args[0], 0)
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			js := ds.Judgments()
			if len(js) > 0 {
				if err := store.Add(cmd.Context(), js); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d judgments for %d queries\n", len(js), len(judgments.Group(js)))
			return nil
		},
	}
}

func judgmentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [QUERY_ID]",
		Short: "List judged queries, or the relevant IDs of one query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var ids []string
			if len(args) == 1 {
				ids, err = store.GroundTruth(cmd.Context(), args[0])
			} else {
				ids, err = store.Queries(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, ids)
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}
