package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/evertag/internal/domain"
	"github.com/roach88/evertag/internal/fulfillment"
	"github.com/roach88/evertag/internal/store"
)

// NewOrdersCommand creates the orders command group.
func NewOrdersCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and advance orders",
	}
	cmd.AddCommand(newOrdersListCommand(opts))
	cmd.AddCommand(newOrdersShowCommand(opts))
	cmd.AddCommand(newOrdersStatusCommand(opts))
	return cmd
}

func newOrdersListCommand(opts *RootOptions) *cobra.Command {
	var (
		status   string
		unlinked bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		Long: `List orders, newest first. --unlinked shows orders that have no memorial
and need a repair.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.OrderFilter{Status: domain.OrderStatus(status), Unlinked: unlinked, Limit: limit}
			if status != "" && !filter.Status.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown order status %q", status))
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			orders, err := a.store.ListOrders(cmd.Context(), filter)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list orders", err)
			}
			if orders == nil {
				orders = []domain.Order{}
			}
			return newFormatter(cmd, opts).Success(orders, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ORDER\tNUMBER\tSTATUS\tEMAIL\tMEMORIAL")
				for _, o := range orders {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.OrderNumber, o.Status, o.CustomerEmail, dash(o.MemorialID))
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&unlinked, "unlinked", false, "only orders without a memorial")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of orders (0 = all)")
	return cmd
}

// orderView is an order with whatever of its triad exists.
type orderView struct {
	Order      domain.Order       `json:"order"`
	Memorial   *domain.Memorial   `json:"memorial,omitempty"`
	AccessCode *domain.AccessCode `json:"access_code,omitempty"`
}

func newOrdersShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id|reference>",
		Short: "Show an order with its memorial and code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			order, err := a.store.GetOrder(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				order, err = a.store.GetOrderByReference(ctx, args[0])
			}
			if errors.Is(err, store.ErrNotFound) {
				return wrapDomainError("lookup failed", domain.NewNotFoundError("order", args[0]))
			}
			if err != nil {
				return WrapExitError(ExitFailure, "lookup failed", err)
			}

			view := orderView{Order: order}
			if order.Linked() {
				m, err := a.store.GetMemorial(ctx, order.MemorialID)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to load memorial", err)
				}
				view.Memorial = &m
				c, err := a.store.GetAccessCodeByMemorial(ctx, m.ID)
				if err == nil {
					view.AccessCode = &c
				} else if !errors.Is(err, store.ErrNotFound) {
					return WrapExitError(ExitFailure, "failed to load access code", err)
				}
			}

			return newFormatter(cmd, opts).Success(view, func(w io.Writer) {
				fmt.Fprintf(w, "Order %s (%s)\n", order.ID, order.OrderNumber)
				fmt.Fprintf(w, "  Reference: %s\n", order.PaymentReference)
				fmt.Fprintf(w, "  Status:    %s\n", order.Status)
				fmt.Fprintf(w, "  Customer:  %s\n", order.CustomerEmail)
				fmt.Fprintf(w, "  Total:     %d %s\n", order.Totals.Total, order.Totals.Currency)
				for _, item := range order.Items {
					fmt.Fprintf(w, "  Item:      %dx %s (%s)\n", item.Quantity, item.Name, item.SKU)
				}
				if view.Memorial == nil {
					fmt.Fprintln(w, "  Memorial:  none, run `evertag repair "+order.ID+"`")
					return
				}
				fmt.Fprintf(w, "  Memorial:  %s (%s, activated=%t)\n", view.Memorial.ID, view.Memorial.Name, view.Memorial.IsActivated)
				if view.AccessCode != nil {
					fmt.Fprintf(w, "  Code:      %s\n", codeLabel(*view.AccessCode))
				}
			})
		},
	}
}

func newOrdersStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <order-id> <status>",
		Short: "Advance an order's lifecycle status",
		Long: `Move an order forward: paid -> processing -> shipped -> delivered.
Orders not yet shipped can be cancelled. Status never moves backwards.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			order, err := fulfillment.AdvanceOrder(cmd.Context(), a.store, a.clock, args[0], domain.OrderStatus(args[1]))
			if err != nil {
				return wrapDomainError("status change failed", err)
			}
			return newFormatter(cmd, opts).Success(order, func(w io.Writer) {
				fmt.Fprintf(w, "Order %s is %s.\n", order.ID, order.Status)
			})
		},
	}
}
