package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/phuslu/log"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/database"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/loader"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/logging"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/repository"
	"github.com/ubermorgenland/openapi-mcp-proxy/pkg/services"
)

type app struct {
	databaseURL string
	verbose     bool

	logger   *log.Logger
	db       *sql.DB
	registry *services.Registry
}

// open connects to the registry database.
func (a *app) open(cmd *cobra.Command) error {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	a.logger = logging.New(level)

	if a.databaseURL == "" {
		return fmt.Errorf("DATABASE_URL or --database-url is required")
	}
	db, err := database.Connect(cmd.Context(), a.databaseURL, a.logger)
	if err != nil {
		return err
	}
	a.db = db
	a.registry = services.NewRegistry(
		repository.NewOpenAPISpecRepository(db),
		loader.NewSpecLoader(loader.WithLogger(a.logger)),
		a.logger,
	)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{databaseURL: os.Getenv("DATABASE_URL")}

	root := &cobra.Command{
		Use:   "spec-manager",
		Short: "Manage the OpenAPI specs stored in the database registry",
		Example: `  spec-manager migrate
  spec-manager import weather.yaml --name weather --mode search
  spec-manager import-dir ./specs
  spec-manager list
  spec-manager show --id 3
  spec-manager deactivate weather`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.databaseURL, "database-url", a.databaseURL, "PostgreSQL connection string (default $DATABASE_URL)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		migrateCmd(a),
		listCmd(a),
		importCmd(a),
		importDirCmd(a),
		seedCmd(a),
		showCmd(a),
		activateCmd(a, true),
		activateCmd(a, false),
		deleteCmd(a),
	)
	return root
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the openapi_specs table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.RunMigrations(a.db, a.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func listCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := a.registry.List(!all)
			if err != nil {
				return err
			}
			printSpecs(cmd.OutOrStdout(), specs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include deactivated specs")
	return cmd
}

func importCmd(a *app) *cobra.Command {
	var opts services.ImportOptions
	cmd := &cobra.Command{
		Use:   "import <file|url>",
		Short: "Import a spec, replacing any spec with the same name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.registry.Import(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			printImport(cmd.OutOrStdout(), args[0], res)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "registry name (default: derived from the file name)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "base URL to call instead of the spec's server")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "tool mode to serve this spec with: full or search")
	return cmd
}

func importDirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-dir <dir>",
		Short: "Import every .yaml, .yml and .json file in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, errs := a.registry.ImportDir(cmd.Context(), args[0])
			return report(cmd, results, errs)
		},
	}
}

func seedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <seed.yaml|seed.json>",
		Short: "Import the specs listed in a seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := services.LoadSeedConfig(args[0])
			if err != nil {
				return err
			}
			results, errs := a.registry.Seed(cmd.Context(), cfg)
			return report(cmd, results, errs)
		},
	}
}

// specLookup finds stored specs by name or by the ID column of list.
type specLookup interface {
	Get(name string) (*models.OpenAPISpec, error)
	GetByID(id int) (*models.OpenAPISpec, error)
}

func lookupSpec(reg specLookup, arg string, byID bool) (*models.OpenAPISpec, error) {
	if !byID {
		return reg.Get(arg)
	}
	id, err := cast.ToIntE(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid spec id %q", arg)
	}
	return reg.GetByID(id)
}

func showCmd(a *app) *cobra.Command {
	var content, byID bool
	cmd := &cobra.Command{
		Use:   "show <name|id>",
		Short: "Show one stored spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := lookupSpec(a.registry, args[0], byID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if content {
				_, err := io.WriteString(out, spec.SpecContent)
				return err
			}
			fmt.Fprintf(out, "ID:       %d\n", spec.ID)
			fmt.Fprintf(out, "Name:     %s\n", spec.Name)
			fmt.Fprintf(out, "Title:    %s\n", models.StringValue(spec.Title))
			fmt.Fprintf(out, "Version:  %s\n", models.StringValue(spec.Version))
			fmt.Fprintf(out, "Source:   %s\n", spec.Source)
			fmt.Fprintf(out, "Format:   %s\n", spec.FileFormat)
			fmt.Fprintf(out, "Base URL: %s\n", models.StringValue(spec.BaseURL))
			fmt.Fprintf(out, "Mode:     %s\n", models.StringValue(spec.Mode))
			fmt.Fprintf(out, "Active:   %t\n", spec.IsActive)
			if spec.UpdatedAt != nil {
				fmt.Fprintf(out, "Updated:  %s\n", spec.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&content, "content", false, "print the stored document instead")
	cmd.Flags().BoolVar(&byID, "id", false, "treat the argument as the ID shown by list")
	return cmd
}

func activateCmd(a *app, active bool) *cobra.Command {
	use, short, done := "activate", "Serve a stored spec again", "activated"
	if !active {
		use, short, done = "deactivate", "Keep a stored spec but refuse to serve it", "deactivated"
	}
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if active {
				err = a.registry.Activate(args[0])
			} else {
				err = a.registry.Deactivate(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully %s spec '%s'\n", done, args[0])
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.registry.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully deleted spec '%s'\n", args[0])
			return nil
		},
	}
}

func printImport(w io.Writer, source string, res *services.ImportResult) {
	status := "active"
	if !res.Spec.IsActive {
		status = "inactive"
	}
	fmt.Fprintf(w, "✓ Imported %s as '%s' (%s, %d endpoints)\n", source, res.Spec.Name, status, res.Endpoints)
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

// report prints a batch import and fails when nothing could be imported.
func report(cmd *cobra.Command, results []*services.ImportResult, errs []error) error {
	for _, res := range results {
		printImport(cmd.OutOrStdout(), res.Spec.Source, res)
	}
	for _, err := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nImport completed: %d specs imported successfully\n", len(results))
	if len(results) == 0 && len(errs) > 0 {
		return fmt.Errorf("no specs imported")
	}
	return nil
}

func printSpecs(w io.Writer, specs []*models.OpenAPISpec) {
	if len(specs) == 0 {
		fmt.Fprintln(w, "No specs found in the database.")
		return
	}

	fmt.Fprintf(w, "%-4s %-20s %-30s %-10s %-8s %-7s %s\n", "ID", "Name", "Title", "Version", "Active", "Mode", "Base URL")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, spec := range specs {
		mode := models.StringValue(spec.Mode)
		if mode == "" {
			mode = "-"
		}
		fmt.Fprintf(w, "%-4d %-20s %-30s %-10s %-8t %-7s %s\n",
			spec.ID,
			truncate(spec.Name, 18),
			truncate(models.StringValue(spec.Title), 28),
			truncate(models.StringValue(spec.Version), 8),
			spec.IsActive,
			mode,
			models.StringValue(spec.BaseURL))
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
