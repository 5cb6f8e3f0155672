package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/intellifactory/internal/config"
	"github.com/zulandar/intellifactory/internal/db"
	"golang.org/x/term"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBSeedCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the IntelliFactory database",
		Long:  "Creates the database (MySQL only), migrates all tables and seeds the demo factory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	if cfg.Database.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Name)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := seed(out, gormDB); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nIntelliFactory database initialized successfully.")
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace factory state with the demo data set",
		Long:  "Replaces machines, orders and energy prices with the demo factory. Past decisions are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(cmd, configPath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			return seed(cmd.OutOrStdout(), gormDB)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}

func seed(out io.Writer, gormDB *gorm.DB) error {
	res, err := db.Seed(gormDB, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d machines, %d orders, %d energy prices\n", res.Machines, res.Orders, res.EnergyPrices)
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all tables and re-seed the database",
		Long: `Drops every IntelliFactory table, including the decision history, then
migrates and seeds the demo factory again. Asks for confirmation unless --yes
is given; refuses to run unattended without it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes || force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation prompt (alias for --yes)")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(cmd, configPath)
	if err != nil {
		return err
	}

	if !skipConfirm {
		if !interactive(cmd) {
			return fmt.Errorf("stdin is not a terminal; pass --yes to reset without a prompt")
		}
		if !confirmReset(cmd, databaseLabel(cfg.Database)) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := db.Reset(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped and migrated %d tables\n", len(db.AllModels()))

	if err := seed(out, gormDB); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nIntelliFactory database reset successfully.")
	return nil
}

// interactive reports whether the command can prompt. Readers that are not
// files (tests, pipes set via SetIn) count as interactive.
func interactive(cmd *cobra.Command) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}

func databaseLabel(cfg config.DatabaseConfig) string {
	if cfg.Driver == "mysql" {
		return cfg.Name
	}
	return cfg.Path
}

func confirmReset(cmd *cobra.Command, dbName string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in database %q.\n", dbName)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
