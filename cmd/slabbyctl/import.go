package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/slabby/internal/importer/slabbo"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import shops from other shop plugins",
}

var importSlabboCmd = &cobra.Command{
	Use:   "slabbo <shops.yml>",
	Short: "Import shops from a Slabbo shops.yml",
	Long: `Import shops from a Slabbo shops.yml.

Each shop is stored in its own transaction with its owner holding the full
share. Shops that fail (an occupied location, a malformed entry) are reported
and skipped; the rest are imported.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportSlabbo,
}

func init() {
	importCmd.AddCommand(importSlabboCmd)
}

func runImportSlabbo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, closeFn, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	imp := slabbo.NewImporter(e.repo, e.codec, e.svc, e.logger, e.cfg.Shop.Note)
	res, err := imp.ImportFile(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d shops\n", len(res.Imported))
	if len(res.Failed) > 0 {
		fmt.Fprintf(out, "Failed %d shops:\n", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(out, "  %s: %v\n", f.Key, f.Err)
		}
		return fmt.Errorf("%d shops failed to import", len(res.Failed))
	}
	return nil
}
