package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/gmsas95/medtwin/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	headStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(false)
			if err != nil {
				return err
			}
			defer a.Logger.Sync()

			a.Logger.Info("Starting medtwin", zap.String("version", opts.version))
			return a.RunServer()
		},
	}
}

func simulateCmd(opts *options) *cobra.Command {
	var (
		s      steps
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply and revert treatments and print the resulting trajectory",
		Example: `  medtwin simulate --apply 2 --apply 3
  medtwin simulate --apply 1,2 --revert 1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(true)
			if err != nil {
				return err
			}
			defer a.Logger.Sync()

			if err := s.run(a.Session); err != nil {
				return err
			}

			snap := a.Session.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}

	s.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	return cmd
}

// printSnapshot renders the metrics table, applied treatments and score
func printSnapshot(w io.Writer, snap model.Snapshot) {
	rows := make([][]string, 0, len(snap.Metrics))
	for _, key := range slices.Sorted(maps.Keys(snap.Metrics)) {
		m := snap.Metrics[key]
		rows = append(rows, []string{
			m.Name,
			report.Number(m.Current) + " " + m.Unit,
			report.Number(m.Target) + " " + m.Unit,
			report.SignedNumber(m.ImpactScore),
			string(m.Trend),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("METRIC", "CURRENT", "TARGET", "IMPACT", "TREND").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())

	if len(snap.Applied) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Applied treatments"))
		for _, tr := range snap.Applied {
			fmt.Fprintf(w, "  %d  %s (%s)\n", tr.ID, tr.Name, tr.Type)
		}
	}

	fmt.Fprintf(w, "%s %s (%s)\n",
		titleStyle.Render("Overall Health Score:"),
		strconv.Itoa(snap.OverallHealth),
		snap.Status,
	)
}

func reportCmd(opts *options) *cobra.Command {
	var (
		s      steps
		output string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the health trajectory export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(true)
			if err != nil {
				return err
			}
			defer a.Logger.Sync()

			if err := s.run(a.Session); err != nil {
				return err
			}

			text := a.Session.Report()
			if output == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), text)
				return err
			}
			if err := os.WriteFile(output, []byte(text), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", output)
			return nil
		},
	}

	s.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default stdout, conventionally "+report.Filename+")")
	return cmd
}
