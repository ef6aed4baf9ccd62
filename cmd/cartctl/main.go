// Command cartctl drives the storefront cart from a terminal. The guest cart
// lives in a local store between runs; logging in merges it into the account
// cart on the server.
//
// Subcommands:
//
//	show    print the cart
//	add     add a product
//	update  set the quantity of a line
//	remove  drop a line
//	clear   empty the cart
//	login   authenticate and merge the guest cart
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"storefront/internal/cart"
	"storefront/internal/client"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/localstore"
	"storefront/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cartctl:", err)
		os.Exit(1)
	}
}

// app holds what every subcommand shares. Flags and CARTCTL_* env vars are
// read through v.
type app struct {
	out io.Writer
	v   *viper.Viper

	cfg    *config.Config
	log    *zap.Logger
	api    *client.Client
	engine *cart.Engine
	closer func()
}

func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{out: out, v: viper.New(), closer: func() {}}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "cartctl",
		Short:             "Storefront cart from the terminal",
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	home, _ := os.UserHomeDir()
	pf := root.PersistentFlags()
	pf.String("api", "", "storefront API base URL (default http://localhost:$SERVER_PORT)")
	pf.String("store", "file", "guest cart store: file, redis or memory")
	pf.String("dir", filepath.Join(home, ".cartctl"), "directory of the file store")
	pf.String("key", cart.DefaultStorageKey, "storage key of the guest cart")
	pf.String("token", "", "access token; the cart is the account cart when set")
	pf.Bool("json", false, "print the cart as JSON")
	_ = a.v.BindPFlags(pf)

	a.v.SetEnvPrefix("cartctl")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.showCmd(),
		a.addCmd(),
		a.updateCmd(),
		a.removeCmd(),
		a.clearCmd(),
		a.loginCmd(),
	)
	return root
}

// ── show ──────────────────────────────────────────────────────────────────────

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			return a.print()
		},
	}
}

// ── add ───────────────────────────────────────────────────────────────────────

func (a *app) addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <product-id> <qty>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQty(args[1])
			if err != nil {
				return err
			}
			var variation *cart.Variation
			if id := a.v.GetString("variant"); id != "" {
				variation = &cart.Variation{VariantID: id}
			}

			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			if err := a.engine.AddItem(cmd.Context(), args[0], qty, variation); err != nil {
				return err
			}
			return a.print()
		},
	}
	cmd.Flags().String("variant", "", "variant id of the product")
	_ = a.v.BindPFlag("variant", cmd.Flags().Lookup("variant"))
	return cmd
}

// ── update ────────────────────────────────────────────────────────────────────

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <item-or-product> <qty>",
		Short: "Set the quantity of a cart line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQty(args[1])
			if err != nil {
				return err
			}
			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			if err := a.engine.UpdateQuantity(cmd.Context(), refFor(a.engine.Cart(), args[0]), qty); err != nil {
				return err
			}
			return a.print()
		},
	}
}

// ── remove ────────────────────────────────────────────────────────────────────

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-or-product>",
		Short: "Remove a cart line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			if err := a.engine.RemoveItem(cmd.Context(), refFor(a.engine.Cart(), args[0])); err != nil {
				return err
			}
			return a.print()
		},
	}
}

// ── clear ─────────────────────────────────────────────────────────────────────

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			if err := a.engine.Clear(cmd.Context()); err != nil {
				return err
			}
			return a.print()
		},
	}
}

// ── login ─────────────────────────────────────────────────────────────────────

func (a *app) loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and merge the guest cart into the account cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, password := a.v.GetString("email"), a.v.GetString("password")
			if email == "" || password == "" {
				return errors.New("login needs --email and --password")
			}
			if _, err := a.api.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "token: %s\n", a.api.Token())

			if err := a.initialize(cmd.Context()); err != nil {
				return err
			}
			return a.print()
		},
	}
	cmd.Flags().String("email", "", "login email")
	cmd.Flags().String("password", "", "login password (or CARTCTL_PASSWORD)")
	_ = a.v.BindPFlag("email", cmd.Flags().Lookup("email"))
	_ = a.v.BindPFlag("password", cmd.Flags().Lookup("password"))
	return cmd
}

// setup loads config and wires the client, the local store and the engine.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg

	a.log, err = logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	local, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	a.closer = closeStore

	baseURL := a.v.GetString("api")
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Server.Port
	}
	a.api = client.New(baseURL, client.WithLogger(a.log), client.WithToken(a.v.GetString("token")))
	a.engine = cart.NewEngine(a.api, a.api, local,
		cart.WithStorageKey(a.v.GetString("key")),
		cart.WithLogger(a.log),
	)
	return nil
}

// initialize resolves the cart for the current token. A token makes the
// session authenticated, which merges any guest cart left in the store.
func (a *app) initialize(ctx context.Context) error {
	auth := cart.AuthUnauthenticated
	if a.api.Token() != "" {
		auth = cart.AuthAuthenticated
	}
	return a.engine.Initialize(ctx, auth)
}

func (a *app) close() {
	a.closer()
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) openStore() (cart.LocalStore, func(), error) {
	noop := func() {}
	switch kind := a.v.GetString("store"); kind {
	case "memory":
		return localstore.NewMemory(), noop, nil
	case "file":
		store, err := localstore.NewFile(a.v.GetString("dir"))
		return store, noop, err
	case "redis":
		if a.cfg.Redis.Addr == "" {
			return nil, noop, errors.New("redis store needs REDIS_ADDR")
		}
		rc, err := database.NewRedisClient(a.cfg.Redis, a.log)
		if err != nil {
			return nil, noop, err
		}
		return localstore.NewRedis(rc, "cartctl:", a.cfg.Redis.CartTTL), func() { _ = rc.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown store %q", kind)
	}
}

func parseQty(s string) (int, error) {
	qty, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad quantity %q", s)
	}
	return qty, nil
}

// refFor picks the line by id when one matches, otherwise treats arg as a product id
func refFor(c cart.Cart, arg string) cart.ItemRef {
	for _, it := range c.Items {
		if it.ID == arg {
			return cart.ItemRef{ItemID: arg}
		}
	}
	return cart.ItemRef{ProductID: arg}
}

func (a *app) print() error {
	c := a.engine.Cart()
	if a.v.GetBool("json") {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"items":     c.Items,
			"itemCount": a.engine.ItemCount(),
			"total":     a.engine.Total().StringFixed(2),
		})
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tPRODUCT\tNAME\tQTY\tUNIT\tLINE")
	for _, it := range c.Items {
		unit := it.Product.UnitPrice()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.Product.ID, it.Product.Name, it.Quantity,
			unit.StringFixed(2), unit.Mul(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t\t%d\t\t%s\n", a.engine.ItemCount(), a.engine.Total().StringFixed(2))
	return tw.Flush()
}
