package main

import (
	"context"
	"fmt"

	"fundportal/internal/backend"
	"fundportal/internal/config"
	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/seed"
	"fundportal/internal/services"
	"fundportal/internal/storage"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load master data, vendors, users, works and allocations from a YAML file",
	Long: `Loads a seed file into the database. Without --file the built-in demo
data is used. Records that already exist (same code, PAN or username) are
kept, so seeding twice is harmless.`,
	RunE: runSeed,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user account",
	Example: `  portalctl user add --username dc.blr --password s3cret! --role district --district 1
  portalctl user add --username mla.jayanagar --password s3cret! --role mla --constituency Jayanagar`,
	RunE: runUserAdd,
}

var (
	seedFile string
	newUser  services.NewUser
	newRole  string
)

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "Seed file (default: built-in demo data)")

	userAddCmd.Flags().StringVar(&newUser.Username, "username", "", "Login name (required)")
	userAddCmd.Flags().StringVar(&newUser.Password, "password", "", "Initial password (required)")
	userAddCmd.Flags().StringVar(&newRole, "role", "", "admin, district, mla, mlc, ia or vendor (required)")
	userAddCmd.Flags().StringVar(&newUser.DisplayName, "display-name", "", "Name shown in the portal")
	userAddCmd.Flags().StringVar(&newUser.Constituency, "constituency", "", "Constituency of an MLA or MLC")
	userAddCmd.Flags().Int64Var(&newUser.DistrictID, "district", 0, "District id of a district officer")
	userAddCmd.Flags().Int64Var(&newUser.AgencyID, "agency", 0, "Agency id of an implementing agency user")
	userAddCmd.Flags().Int64Var(&newUser.VendorID, "vendor", 0, "Vendor id of a vendor user")
	_ = userAddCmd.MarkFlagRequired("username")
	_ = userAddCmd.MarkFlagRequired("password")
	_ = userAddCmd.MarkFlagRequired("role")
	userCmd.AddCommand(userAddCmd)
}

// sqlConfig reads the database settings and refuses the memory backend,
// whose contents would vanish when the command exits.
func sqlConfig() (*config.Config, error) {
	cfg := config.Load()
	if cfg.DataBackend == config.BackendMemory {
		return nil, fmt.Errorf("DATA_BACKEND is memory: set it to sqlite or postgres")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(ctx context.Context) (*backend.BackendResult, error) {
	cfg, err := sqlConfig()
	if err != nil {
		return nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcfg.AMQPURL = ""
	return backend.NewFactory(log.Discard()).CreateBackend(ctx, bcfg)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := sqlConfig()
	if err != nil {
		return err
	}
	dialect := storage.Dialect(cfg.DataBackend)
	if err := storage.RunMigrations(dialect, cfg.DSN()); err != nil {
		return err
	}
	v, dirty, err := storage.MigrationVersion(dialect, cfg.DSN())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d (dirty=%v)\n", dialect, v, dirty)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	file, err := seed.Load(seedFile)
	if err != nil {
		return err
	}
	be, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer be.Close()

	res, err := seed.Apply(ctx, be.Store, file, services.HashPassword)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "masters %d, vendors %d, users %d, works %d, allocations %d created; %d already present\n",
		res.Masters, res.Vendors, res.Users, res.Works, res.Allocations, res.Skipped)
	return nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	be, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer be.Close()

	in := newUser
	in.Role = core.Role(newRole)
	auth := services.NewAuthService(be.Store, be.Store, 0, log.Discard())
	u, err := auth.CreateUser(ctx, core.Principal{}, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (id %d)\n", u.Role.Label(), u.Username, u.ID)
	return nil
}
