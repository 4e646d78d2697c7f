package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/apiclient"
	"storefront/internal/cartmirror"
	"storefront/internal/checkout"
	applog "storefront/internal/log"
)

const tokenKey = "session_token"

// session bundles what every client command needs.
type session struct {
	api    *apiclient.Client
	store  *cartmirror.FileStore
	mirror *cartmirror.Mirror
}

func openSession() (*session, error) {
	applog.Setup("production", os.Stderr)
	store := cartmirror.NewFileStore(stateDir)
	api := apiclient.New(apiURL)
	tok, ok, err := store.Get(tokenKey)
	if err != nil {
		return nil, err
	}
	if ok {
		api.SetToken(string(tok))
	}
	return &session{api: api, store: store, mirror: cartmirror.New(store, api)}, nil
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			ctx, cancel := timeout()
			defer cancel()
			sess, err := s.api.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := s.store.Set(tokenKey, []byte(sess.Token)); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (expires %s)\n", sess.User.Email, sess.ExpiresAt.Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cartmirror.NewFileStore(stateDir).Delete(tokenKey)
		},
	}
}

func productsCmd() *cobra.Command {
	var (
		query       string
		page, limit int
	)
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			ctx, cancel := timeout()
			defer cancel()
			items, err := s.api.Products(ctx, query, page, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tSTOCK")
			for _, p := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search text")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 12, "page size")
	return cmd
}

func cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or change the cart",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the cart",
		RunE: withMirror(func(ctx context.Context, s *session, args []string) error {
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "add <product-id> [qty]",
		Short: "Add a product",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withMirror(func(ctx context.Context, s *session, args []string) error {
			qty := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				qty = n
			}
			p, err := s.api.Product(ctx, args[0])
			if err != nil {
				return err
			}
			return s.mirror.Add(ctx, p, qty)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "update <item-id> <qty>",
		Short: "Set a line's quantity; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: withMirror(func(ctx context.Context, s *session, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return s.mirror.Update(ctx, args[0], qty)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: withMirror(func(ctx context.Context, s *session, args []string) error {
			return s.mirror.Remove(ctx, args[0])
		}),
	})
	return cmd
}

// withMirror loads the cart, runs fn and prints the resulting cart. The cart
// is printed even when fn fails so the user sees what each store now holds.
func withMirror(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		ctx, cancel := timeout()
		defer cancel()
		out := cmd.OutOrStdout()
		src, fetchErr := s.mirror.Fetch(ctx)
		if fetchErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", fetchErr)
		}
		err = fn(ctx, s, args)
		printCart(out, s.mirror, src)
		return err
	}
}

func printCart(out io.Writer, m *cartmirror.Mirror, src cartmirror.Source) {
	items := m.Items()
	if len(items) == 0 {
		fmt.Fprintln(out, "cart is empty")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tPRODUCT\tQTY\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", it.ID, it.Name, it.Quantity, it.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(w, "\t\tTOTAL\t%s\n", m.Total().StringFixed(2))
	_ = w.Flush()
	fmt.Fprintf(out, "(loaded from %s)\n", src)
}

func checkoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart and print the payment link",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			if !s.api.HasSession() {
				return errors.New("not signed in; run `storefront login` first")
			}
			ctx, cancel := timeout()
			defer cancel()
			if _, err := s.mirror.Fetch(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			o := &checkout.Orchestrator{
				API: s.api,
				Open: func(_ context.Context, url string) error {
					_, err := fmt.Fprintf(out, "pay here: %s\n", url)
					return err
				},
			}
			res, err := o.Run(ctx, s.mirror.Items())
			if res.Order != nil {
				fmt.Fprintf(out, "order %s (%s) total %s\n", res.Order.ID, res.Order.Status, res.Order.Total.StringFixed(2))
			}
			return err
		},
	}
}

func ordersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List your orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			ctx, cancel := timeout()
			defer cancel()
			orders, err := s.api.Orders(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTOTAL\tCREATED")
			for _, o := range orders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.ID, o.Status, o.Total.StringFixed(2), o.CreatedAt)
			}
			return w.Flush()
		},
	}
}
