package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"go-storefront-session/internal/model"
)

func (c *cli) cartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Work with the cart; guests use the local cart, signed-in users the account cart",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(
		c.cartListCommand(),
		c.cartAddCommand(),
		c.cartUpdateCommand(),
		c.cartRemoveCommand(),
		c.cartClearCommand(),
	)

	return cmd
}

type cartView struct {
	Authenticated bool                  `json:"authenticated"`
	Summary       model.CartSummary     `json:"summary"`
	Expiry        *model.CartExpiryInfo `json:"expiry,omitempty"`
}

func (c *cli) printCart(cmd *cobra.Command) error {
	if err := c.app.Cart.Settle(cmd.Context()); err != nil {
		return err
	}

	view := cartView{
		Authenticated: c.app.Session.IsAuthenticated(),
		Summary:       c.app.Cart.Summary(),
	}
	if !view.Authenticated {
		info := c.app.Cart.ExpiryInfo(cmd.Context())
		view.Expiry = &info
	}
	return c.print(view)
}

func (c *cli) cartListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printCart(cmd)
		},
	}
}

func (c *cli) cartAddCommand() *cobra.Command {
	var (
		qty   int
		name  string
		price float64
	)

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product; details come from the catalog unless --name and --price are given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if qty < 1 {
				return fmt.Errorf("--qty must be at least 1")
			}

			var product model.Product
			if name != "" && cmd.Flags().Changed("price") {
				product = model.Product{ID: args[0], Name: name, Price: price, IsActive: true}
			} else {
				found, err := c.app.Client.Product(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("look up product %s: %w", args[0], err)
				}
				product = found
			}

			c.app.Cart.Add(cmd.Context(), product, qty)
			return c.printCart(cmd)
		},
	}

	cmd.Flags().IntVarP(&qty, "qty", "q", 1, "Quantity to add")
	cmd.Flags().StringVar(&name, "name", "", "Product name, skips the catalog lookup together with --price")
	cmd.Flags().Float64Var(&price, "price", 0, "Unit price")
	return cmd
}

func (c *cli) cartUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update <product-id> <qty>",
		Short: "Set the quantity of a product; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}

			c.app.Cart.UpdateQuantity(cmd.Context(), args[0], qty)
			return c.printCart(cmd)
		},
	}
}

func (c *cli) cartRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.Cart.Remove(cmd.Context(), args[0])
			return c.printCart(cmd)
		},
	}
}

func (c *cli) cartClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.Cart.Clear(cmd.Context())
			return c.printCart(cmd)
		},
	}
}
