package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bizzlechizzle/aupat-sub000/internal/app"
	"github.com/bizzlechizzle/aupat-sub000/internal/config"
	"github.com/bizzlechizzle/aupat-sub000/internal/database"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig reads the config file named by the application defaults.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an AupatApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Import", "LocationAdd").
func newApp(operation string, args ...string) (*app.AupatApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewAupatApp(cfg, operation, strings.Join(args, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "aupat",
	Short:        "Media archive ingestion pipeline",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		absRoot, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolving archive root: %w", err)
		}

		archiveID := uuid.New().String()
		cfg := config.NewConfig(archiveID, defaults["base_dir"], absRoot)

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Archive ID:   %s\n", archiveID)
		fmt.Printf("Archive Root: %s\n", absRoot)
		fmt.Printf("Base Dir:     %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Archive ID:   %s\n", cfg.ArchiveID)
		fmt.Printf("Archive Root: %s\n", cfg.Archive.Root)
		fmt.Printf("Staging Dir:  %s\n", cfg.Staging.Dir)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Hash:         %s\n", cfg.Pipeline.HashAlgorithm)
		fmt.Printf("Batch Size:   %d\n", cfg.Pipeline.BatchSize)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:        %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage catalog snapshot keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt catalog snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// location command
var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Manage locations",
}

var locationAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		region, _ := cmd.Flags().GetString("region")
		typ, _ := cmd.Flags().GetString("type")
		subType, _ := cmd.Flags().GetString("sub-type")

		a, err := newApp("LocationAdd", args[0], region, typ)
		if err != nil {
			return err
		}
		defer a.Close()

		loc, err := a.CreateLocation(args[0], region, typ, subType)
		if err != nil {
			return fmt.Errorf("creating location: %w", err)
		}
		fmt.Printf("Location %s: %s\n", loc.ID, a.LocationDir(loc))
		return nil
	},
}

var locationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LocationList")
		if err != nil {
			return err
		}
		defer a.Close()

		locs, err := a.ListLocations()
		if err != nil {
			return err
		}
		if len(locs) == 0 {
			fmt.Println("No locations registered.")
			return nil
		}
		for _, loc := range locs {
			fmt.Printf("%s  %-4s  %-12s  %s\n", loc.ID, loc.Region, loc.Type, loc.Name)
		}
		return nil
	},
}

var locationShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a location and its sub-locations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LocationShow")
		if err != nil {
			return err
		}
		defer a.Close()

		loc, err := a.GetLocation(args[0])
		if err != nil {
			return err
		}
		subs, err := a.ListSubLocations(loc.ID)
		if err != nil {
			return err
		}

		fmt.Printf("ID:       %s\n", loc.ID)
		fmt.Printf("Name:     %s\n", loc.Name)
		fmt.Printf("Region:   %s\n", loc.Region)
		fmt.Printf("Type:     %s\n", loc.Type)
		if loc.SubType != "" {
			fmt.Printf("Sub-type: %s\n", loc.SubType)
		}
		fmt.Printf("Folder:   %s\n", a.LocationDir(loc))
		for _, sub := range subs {
			fmt.Printf("  sub %s  %s\n", sub.ID, sub.Name)
		}
		return nil
	},
}

var locationSubCmd = &cobra.Command{
	Use:   "sub",
	Short: "Manage sub-locations",
}

var locationSubAddCmd = &cobra.Command{
	Use:   "add LOCATION NAME",
	Short: "Register a sub-location",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SubLocationAdd", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		sub, err := a.CreateSubLocation(args[0], args[1])
		if err != nil {
			return fmt.Errorf("creating sub-location: %w", err)
		}
		fmt.Printf("Sub-location %s: %s\n", sub.ID, sub.Name)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import PATH...",
	Short: "Import staged files into the archive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")
		sub, _ := cmd.Flags().GetString("sub")
		job, _ := cmd.Flags().GetString("job")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp("Import", append([]string{"location=" + location}, args...)...)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := a.Import(ctx, args, location, sub, job)
		printReport(os.Stdout, report, verbose)
		return err
	},
}

var importResumeCmd = &cobra.Command{
	Use:   "resume JOB",
	Short: "Continue an interrupted or failed import job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp("ImportResume", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := a.ResumeJob(ctx, args[0])
		printReport(os.Stdout, report, verbose)
		return err
	},
}

// job command
var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and recover import jobs",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unfinished import jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("JobList")
		if err != nil {
			return err
		}
		defer a.Close()

		jobs, err := a.ListJobs()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No unfinished jobs.")
			return nil
		}
		for _, cp := range jobs {
			fmt.Printf("%s  %s  %s\n", cp.JobID, cp.UpdatedAt.Format("2006-01-02 15:04:05"), describeState(cp))
		}
		return nil
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show JOB",
	Short: "Show a job's checkpoint and remaining entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("JobShow")
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.GetJob(args[0])
		if err != nil {
			return err
		}
		printJob(os.Stdout, status)
		return nil
	},
}

var jobResetCmd = &cobra.Command{
	Use:   "reset JOB",
	Short: "Roll back a failed or corrupt job and discard its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("JobReset", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ResetJob(args[0]); err != nil {
			return fmt.Errorf("resetting job: %w", err)
		}
		fmt.Printf("Job %s reset; staged files are left in place.\n", args[0])
		return nil
	},
}

// asset command
var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Inspect archived assets",
}

var assetShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AssetShow")
		if err != nil {
			return err
		}
		defer a.Close()

		asset, err := a.GetAsset(args[0])
		if err != nil {
			return err
		}
		printAsset(os.Stdout, asset, a.AssetPath(asset))
		return nil
	},
}

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the assets of a location",
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")

		a, err := newApp("AssetList")
		if err != nil {
			return err
		}
		defer a.Close()

		assets, err := a.ListAssets(location)
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			fmt.Println("No assets.")
			return nil
		}
		for _, asset := range assets {
			fmt.Printf("%s  %-8s  %-10s  %s\n", asset.ID, asset.Class, asset.Category, asset.ArchivePath)
		}
		return nil
	},
}

var assetMoveCmd = &cobra.Command{
	Use:   "move ID",
	Short: "Reassign a finalized asset to another location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, _ := cmd.Flags().GetString("location")
		sub, _ := cmd.Flags().GetString("sub")

		a, err := newApp("AssetMove", args[0], "location="+location)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.MoveAsset(args[0], location, sub); err != nil {
			return fmt.Errorf("moving asset: %w", err)
		}
		fmt.Printf("Asset %s now belongs to %s\n", args[0], location)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the archive folder structure",
}

var archiveEnsureCmd = &cobra.Command{
	Use:   "ensure LOCATION",
	Short: "Create a location's folder structure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveEnsure", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.EnsureStructure(args[0])
		if err != nil {
			return fmt.Errorf("creating folders: %w", err)
		}
		for _, dir := range created {
			fmt.Println(dir)
		}
		fmt.Printf("%d directories created\n", len(created))
		return nil
	},
}

var archiveTreeCmd = &cobra.Command{
	Use:   "tree LOCATION",
	Short: "Render a location's folder structure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ArchiveTree")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.ArchiveTree(args[0])
		if err != nil {
			return err
		}
		fmt.Print(tree)
		return nil
	},
}

// lock command
var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the archive write lock",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the archive write lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LockStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.LockStatus()
		if err != nil {
			return err
		}
		if info == nil {
			fmt.Println("Archive is not locked.")
			return nil
		}
		state := "stale"
		if info.Held {
			state = "held"
		}
		fmt.Printf("Lock %s: pid %d on %s since %s (process alive: %v)\n",
			state, info.PID, info.Host, info.StartedAt.Format(time.RFC3339), info.Alive)
		return nil
	},
}

var lockClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a stale archive write lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LockClear")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearLock(); err != nil {
			return fmt.Errorf("clearing lock: %w", err)
		}
		fmt.Println("Lock cleared.")
		return nil
	},
}

// catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Back up and restore the catalog",
}

var catalogBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a catalog snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CatalogBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.BackupCatalog()
		if err != nil {
			return fmt.Errorf("backing up catalog: %w", err)
		}
		fmt.Printf("Catalog snapshot uploaded (version %d)\n", version)
		return nil
	},
}

var catalogRestoreCmd = &cobra.Command{
	Use:   "restore [DEST]",
	Short: "Download the latest catalog snapshot from the vault",
	Long:  "Download the latest catalog snapshot. DEST defaults to the configured catalog path, which must not exist.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		dest := ""
		if len(args) == 1 {
			dest = args[0]
		} else if cfg.Database.Type == "sqlite" {
			dest = database.CatalogPath(cfg.Database, cfg.ArchiveID)
		}
		if dest == "" {
			return errors.New("restore destination required")
		}

		var passphrase string
		if cfg.Catalog.Encrypt {
			if passphrase, err = readPassphrase("Passphrase: "); err != nil {
				return err
			}
		}

		version, err := app.RestoreCatalog(cfg, dest, passphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Catalog version %d restored to %s\n", version, dest)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-10s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("root", "", "Archive root directory")
	configInitCmd.MarkFlagRequired("root")

	keysCmd.AddCommand(keysInitCmd)

	// location subcommands
	locationCmd.AddCommand(locationAddCmd)
	locationCmd.AddCommand(locationListCmd)
	locationCmd.AddCommand(locationShowCmd)
	locationCmd.AddCommand(locationSubCmd)
	locationSubCmd.AddCommand(locationSubAddCmd)
	locationAddCmd.Flags().String("region", "", "Region code, e.g. ny")
	locationAddCmd.Flags().String("type", "", "Location type, e.g. factory")
	locationAddCmd.Flags().String("sub-type", "", "Optional refinement of the type")
	locationAddCmd.MarkFlagRequired("region")
	locationAddCmd.MarkFlagRequired("type")

	// import
	importCmd.AddCommand(importResumeCmd)
	importCmd.Flags().StringP("location", "l", "", "Location ID the files belong to")
	importCmd.Flags().StringP("sub", "s", "", "Sub-location ID")
	importCmd.Flags().String("job", "", "Job ID (default: allocate a new job)")
	importCmd.PersistentFlags().BoolP("verbose", "v", false, "Print one line per file")
	importCmd.MarkFlagRequired("location")

	// job subcommands
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobShowCmd)
	jobCmd.AddCommand(jobResetCmd)

	// asset subcommands
	assetCmd.AddCommand(assetShowCmd)
	assetCmd.AddCommand(assetListCmd)
	assetCmd.AddCommand(assetMoveCmd)
	assetListCmd.Flags().StringP("location", "l", "", "Location ID")
	assetListCmd.MarkFlagRequired("location")
	assetMoveCmd.Flags().StringP("location", "l", "", "Target location ID")
	assetMoveCmd.Flags().StringP("sub", "s", "", "Target sub-location ID")
	assetMoveCmd.MarkFlagRequired("location")

	archiveCmd.AddCommand(archiveEnsureCmd)
	archiveCmd.AddCommand(archiveTreeCmd)

	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockClearCmd)

	catalogCmd.AddCommand(catalogBackupCmd)
	catalogCmd.AddCommand(catalogRestoreCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(locationCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(assetCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
