package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/converso-ai/nlu-engine/pkg/errors"
)

func newModelsCmd(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect stored models",
	}
	cmd.AddCommand(newModelsListCmd(root))
	return cmd
}

func newModelsListCmd(root *RootOptions) *cobra.Command {
	var bot string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a bot's stored models, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer rt.close()

			if rt.store == nil {
				return errors.New(errors.ErrCodeConfiguration,
					"models list requires an object-store endpoint in the configuration")
			}

			infos, err := rt.store.List(cmd.Context(), bot)
			if err != nil {
				return err
			}
			if root.OutputFormat == "json" {
				return printResult(cmd, root, infos)
			}

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Language,
					shortHash(info.Hash),
					fmt.Sprintf("%t", info.Success),
					info.FinishedAt.Format(time.RFC3339),
				})
			}
			table := formatTable([]string{"LANGUAGE", "HASH", "SUCCESS", "FINISHED"}, rows)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bot, "bot", "b", "", "bot identifier (required)")
	_ = cmd.MarkFlagRequired("bot")

	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
