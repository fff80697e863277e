package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soyeahso/orderbot/internal/domain"
	"github.com/soyeahso/orderbot/internal/orders"
	"github.com/spf13/cobra"
)

func newOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and advance orders",
	}

	cmd.AddCommand(newOrdersListCmd())
	cmd.AddCommand(newOrdersShowCmd())
	cmd.AddCommand(newOrdersAdvanceCmd())

	return cmd
}

func newOrdersListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := orders.Filter{Limit: limit}
			if status != "" {
				f.Status = domain.OrderStatus(strings.ToLower(status))
				if !f.Status.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.orders.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No orders.")
				return nil
			}
			for _, o := range list {
				fmt.Printf("%-24s  %-10s  %10s  %-16s  %s\n",
					o.OrderNumber, o.Status, o.TotalAmount.StringFixed(2), o.CustomerPhone,
					o.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only orders in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of orders")

	return cmd
}

func newOrdersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <number>",
		Short: "Show an order with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.orders.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printOrder(os.Stdout, o)
			return nil
		},
	}
}

func newOrdersAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <number> <status>",
		Short: "Move an order forward (confirmed, processing, delivered, cancelled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := domain.OrderStatus(strings.ToLower(args[1]))
			if !to.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.orders.Advance(cmd.Context(), args[0], to)
			if err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", o.OrderNumber, o.Status)
			return nil
		},
	}
}

func printOrder(w io.Writer, o *domain.Order) {
	fmt.Fprintf(w, "Order:    %s\n", o.OrderNumber)
	fmt.Fprintf(w, "Status:   %s\n", o.Status)
	fmt.Fprintf(w, "Customer: %s (%s)\n", o.CustomerName, o.CustomerPhone)
	fmt.Fprintf(w, "Payment:  %s\n", o.PaymentMethod)
	fmt.Fprintf(w, "Placed:   %s\n", o.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w)
	for _, l := range o.Lines {
		fmt.Fprintf(w, "  %3d x %-30s %10s %10s\n", l.Quantity, l.Name, l.UnitPrice.StringFixed(2), l.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(w, "  %47s %10s\n", "Total", o.TotalAmount.StringFixed(2))
}
