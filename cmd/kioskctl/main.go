// Command kioskctl administers workers and attendance records directly against the store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"facekiosk/internal/app"
	"facekiosk/internal/config"
)

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "kioskctl",
	Short: "Manage face kiosk workers and attendance",
	Long: `kioskctl talks to the configured store (STORE_BACKEND, DATABASE_URL, MONGODB_URI)
and lets an administrator enroll workers, inspect and export attendance, and
prepare the admin PIN hash.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, yaml or json")
}

// openApp loads configuration (including an optional .env) and opens the store.
func openApp(ctx context.Context) (*app.App, error) {
	cfg := config.Load()
	if cfg.StoreBackend == "memory" {
		return nil, fmt.Errorf("STORE_BACKEND=memory has nothing to administer from a separate process")
	}
	return app.Build(ctx, cfg)
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}
