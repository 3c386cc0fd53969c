package cli

import (
	"errors"
	"os"

	"github.com/gmsas95/medtwin/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func dashboardCmd(opts *options) *cobra.Command {
	var s steps

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Interactive terminal dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("dashboard needs an interactive terminal")
			}

			a, err := opts.newApp(true)
			if err != nil {
				return err
			}
			defer a.Logger.Sync()

			if err := s.run(a.Session); err != nil {
				return err
			}
			return tui.Run(a.Session, a.Advisor)
		},
	}

	s.register(cmd)
	return cmd
}
