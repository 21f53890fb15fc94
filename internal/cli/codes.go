package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/store"
)

// NewCodesCommand creates the codes command group.
func NewCodesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage the access code pool",
	}
	cmd.AddCommand(newCodesGenerateCommand(opts))
	cmd.AddCommand(newCodesListCommand(opts))
	return cmd
}

func newCodesGenerateCommand(opts *RootOptions) *cobra.Command {
	var (
		prefix string
		count  int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of available codes",
		Long: `Generate PREFIX-0001 through PREFIX-NNNN. The batch is all or nothing:
if any code already exists, nothing is written.

Example:
  evertag codes generate --prefix TAG --count 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.generateCodes(cmd, prefix, count)
			if err != nil {
				return wrapDomainError("code generation failed", err)
			}
			return newFormatter(cmd, opts).Success(batch, func(w io.Writer) {
				fmt.Fprintf(w, "Generated %d codes %s..%s (batch %s)\n", batch.Created, batch.First, batch.Last, batch.ID)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "code prefix, A-Z and 0-9 (required)")
	cmd.Flags().IntVar(&count, "count", 0, "number of codes (required)")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

type codeListing struct {
	Codes  []domain.AccessCode       `json:"codes"`
	Counts map[domain.CodeStatus]int `json:"counts"`
}

func newCodesListCommand(opts *RootOptions) *cobra.Command {
	var (
		status    string
		synthetic bool
		prefix    string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.CodeFilter{Status: domain.CodeStatus(status), Prefix: prefix, Limit: limit}
			switch filter.Status {
			case "", domain.CodeAvailable, domain.CodeReserved, domain.CodeActivated:
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown code status %q", status))
			}
			if cmd.Flags().Changed("synthetic") {
				filter.Synthetic = &synthetic
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			codes, err := a.store.ListAccessCodes(cmd.Context(), filter)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list codes", err)
			}
			counts, err := a.store.CountAccessCodes(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to count codes", err)
			}

			out := codeListing{Codes: codes, Counts: counts}
			return newFormatter(cmd, opts).Success(out, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tSTATUS\tMEMORIAL\tORDER")
				for _, c := range codes {
					code := c.Code
					if c.Synthetic {
						code += "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", code, c.Status, dash(c.MemorialID), dash(c.OrderID))
				}
				tw.Flush()
				fmt.Fprintf(w, "\navailable=%d reserved=%d activated=%d\n",
					counts[domain.CodeAvailable], counts[domain.CodeReserved], counts[domain.CodeActivated])
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (available|reserved|activated)")
	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "only synthetic codes (--synthetic=false for pool codes)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "filter by code prefix")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of codes (0 = all)")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
