// Command portalctl administers a fundportal installation: schema
// migrations, seed data and user accounts against the database, and demand
// queries against a running server.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fundportal/internal/cli"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL string
	tokenFile string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Administer the fund management portal",
	Long: `portalctl manages a fundportal installation.

Database commands (migrate, seed, user add) read DATA_BACKEND, SQLITE_DB_PATH
and DATABASE_URL from the environment or a .env file. Remote commands (login,
logout, whoami, demands) talk to a running server over its JSON API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cli.LoadEnvFile()
	},
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "fundportal", "token")
}

func defaultServerURL() string {
	if v := os.Getenv("PORTAL_URL"); v != "" {
		return v
	}
	return "http://localhost:8081"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "Portal base URL (or set PORTAL_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", defaultTokenFile(), "Where the session token is kept")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Operation timeout")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(demandsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
