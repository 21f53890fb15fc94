package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/fulfillment"
)

// NewFulfillCommand creates the fulfill command.
func NewFulfillCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fulfill <reference>",
		Short: "Fulfill a payment by its gateway reference",
		Long: `Verify the payment with the gateway and create its order, memorial and
tag code. Safe to repeat: a fulfilled reference is returned unchanged.

Exits with code 3 when the payment is not confirmed yet.

Example:
  evertag fulfill cs_live_a1b2c3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.orch.Fulfill(cmd.Context(), fulfillment.Request{
				Reference: args[0],
				Source:    fulfillment.SourceCLI,
			})
			if err != nil {
				return wrapDomainError("fulfillment failed", err)
			}
			return newFormatter(cmd, opts).Success(res.Fulfillment, func(w io.Writer) {
				if res.Created {
					fmt.Fprintln(w, "Fulfilled.")
				} else {
					fmt.Fprintln(w, "Already fulfilled.")
				}
				printFulfillment(w, res.Fulfillment)
			})
		},
	}
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <order-id>",
		Short: "Finish an order that has no memorial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.orch.Repair(cmd.Context(), args[0])
			if err != nil {
				return wrapDomainError("repair failed", err)
			}
			return newFormatter(cmd, opts).Success(res, func(w io.Writer) {
				if res.Repaired {
					fmt.Fprintf(w, "Repaired order %s.\n", args[0])
				} else {
					fmt.Fprintf(w, "Order %s already has a memorial.\n", args[0])
				}
				fmt.Fprintf(w, "  Memorial: %s (%s)\n", res.Memorial.ID, res.Memorial.Name)
				fmt.Fprintf(w, "  Code:     %s\n", codeLabel(res.AccessCode))
			})
		},
	}
}

func printFulfillment(w io.Writer, f domain.Fulfillment) {
	fmt.Fprintf(w, "  Order:    %s (%s, %s)\n", f.Order.ID, f.Order.OrderNumber, f.Order.Status)
	fmt.Fprintf(w, "  Customer: %s\n", f.Order.CustomerEmail)
	fmt.Fprintf(w, "  Memorial: %s (%s)\n", f.Memorial.ID, f.Memorial.Name)
	fmt.Fprintf(w, "  Code:     %s\n", codeLabel(f.AccessCode))
}

func codeLabel(c domain.AccessCode) string {
	label := fmt.Sprintf("%s [%s]", c.Code, c.Status)
	if c.Synthetic {
		label += " synthetic, needs manual follow-up"
	}
	return label
}
