package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gmsas95/medtwin/internal/app"
	"github.com/gmsas95/medtwin/internal/catalog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func catalogCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and manage the treatment catalog",
	}

	cmd.AddCommand(catalogListCmd(opts))
	cmd.AddCommand(catalogImportCmd(opts))
	cmd.AddCommand(catalogExportCmd(opts))
	return cmd
}

func catalogListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List treatments by priority",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.activeCatalog()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(cat.Treatments))
			for _, t := range cat.Sorted() {
				rows = append(rows, []string{
					strconv.Itoa(t.ID),
					t.Name,
					t.Type,
					t.Priority,
					strconv.Itoa(t.Confidence) + "%",
				})
			}

			tbl := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "TREATMENT", "TYPE", "PRIORITY", "CONFIDENCE").
				Rows(rows...).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return headStyle
					}
					return cellStyle
				})
			fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return nil
		},
	}
}

func catalogImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Validate a YAML catalog and store it in SQLite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			cat, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}

			store, err := catalog.OpenStore(cfg.Catalog.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Save(cat); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d treatments and %d metrics into %s\n",
				len(cat.Treatments), len(cat.Metrics), cfg.Catalog.SQLitePath)
			for id, keys := range cat.UnknownImpactKeys() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: treatment %d references unknown metrics %v\n", id, keys)
			}
			return nil
		},
	}
}

func catalogExportCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the active catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := opts.activeCatalog()
			if err != nil {
				return err
			}

			data, err := cat.Marshal()
			if err != nil {
				return fmt.Errorf("failed to encode catalog: %w", err)
			}

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0644)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default stdout)")
	return cmd
}

// activeCatalog resolves the catalog the server would use
func (o *options) activeCatalog() (*catalog.Catalog, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if o.verbose {
		if logger, err = NewLogger(cfg.Logging); err != nil {
			return nil, err
		}
	}
	return app.LoadCatalog(cfg, logger)
}
