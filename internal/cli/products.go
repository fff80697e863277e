package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newProductsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Inspect and curate the product catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List products customers can order",
		Args:  cobra.NoArgs,
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

			list, err := a.catalog.ListAvailable(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No products available. Enable catalog.seed or add products to the database.")
				return nil
			}
			for _, p := range list {
				fmt.Printf("%4d  %-14s  %-30s  %10s\n", p.ID, p.Category, p.Name, p.UnitPrice.StringFixed(2))
			}
			return nil
		},
	})

	cmd.AddCommand(newProductAvailabilityCmd("enable", "Offer a product to customers again", true))
	cmd.AddCommand(newProductAvailabilityCmd("disable", "Stop offering a product", false))

	return cmd
}

// newProductAvailabilityCmd toggles a product by ID. Disabled products drop
// out of the catalog shown in conversations; past orders keep their lines.
func newProductAvailabilityCmd(use, short string, available bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid product id %q", args[0])
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

			if err := a.catalog.SetAvailable(cmd.Context(), id, available); err != nil {
				return err
			}
			fmt.Printf("Product %d %sd\n", id, use)
			return nil
		},
	}
}
