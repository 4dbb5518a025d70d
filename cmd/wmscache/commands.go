package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikasazwj/warehouse-inventory-system/internal/api"
	"github.com/mikasazwj/warehouse-inventory-system/internal/cache"
	"github.com/mikasazwj/warehouse-inventory-system/internal/warehouse"
)

// withApp opens the configured cache for a single command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the live value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				v, ok := a.cache.Get(ctx, cache.Key(args[0]))
				if !ok {
					return fmt.Errorf("not cached: %s", args[0])
				}
				return printJSON(v)
			})
		},
	}
}

func setCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Store a JSON value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("value is not valid JSON: %s", args[1])
			}
			return withApp(func(ctx context.Context, a *app) error {
				a.cache.Set(ctx, cache.Key(args[0]), json.RawMessage(args[1]), ttl)
				fmt.Printf("Stored %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "TTL override (default: policy TTL)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>...",
		Short: "Delete keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				for _, k := range args {
					a.cache.Delete(ctx, cache.Key(k))
					fmt.Printf("Deleted %s\n", k)
				}
				return nil
			})
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry under the namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				a.cache.Clear(ctx)
				return printJSON(a.cache.Stats(ctx))
			})
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired and unreadable entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				before := a.cache.Stats(ctx)
				a.cache.Cleanup(ctx)
				after := a.cache.Stats(ctx)
				fmt.Printf("Removed %d entries, %d remain\n", before.Total-after.Total, after.Total)
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts per backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return printJSON(a.cache.Stats(ctx))
			})
		},
	}
}

func policiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the effective policy table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := cfg.PolicyTable()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tTTL\tBACKEND")
			for _, p := range api.PolicyViews(table) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Domain, p.TTL, p.Backend)
			}
			return w.Flush()
		},
	}
}

func warmCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-populate the cache from the warehouse API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				client := warehouse.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
				loader := warehouse.NewLoader(client, a.cache)

				results, err := loader.Warm(ctx, userID)
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tSTATUS")
				for _, r := range results {
					status := "ok"
					if r.Err != nil {
						status = r.Err.Error()
					}
					fmt.Fprintf(w, "%s\t%s\n", r.Key, status)
				}
				w.Flush()
				return err
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Also warm permissions and warehouses for this user id")
	return cmd
}
