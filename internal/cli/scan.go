package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/evertag/internal/activation"
)

// NewScanCommand creates the scan command.
func NewScanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <code>",
		Short: "Process a tag scan",
		Long: `Process a scan of the printed code: activates the memorial on its first
scan and reports the memorial state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.scans.OnScan(cmd.Context(), args[0])
			if err != nil {
				return wrapDomainError("scan failed", err)
			}
			return newFormatter(cmd, opts).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %s\n", res.Code, res.State)
				if res.Activated {
					fmt.Fprintln(w, "  Activated by this scan.")
				}
				if res.State == activation.StateActive && res.Memorial != nil {
					fmt.Fprintf(w, "  Memorial: %s (%s)\n", res.Memorial.ID, res.Memorial.Name)
				}
			})
		},
	}
}
