// Command priceimport validates product descriptors and imports supplier
// prices into the catalog.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/erp/priceimport/internal/application/priceimport"
	"github.com/erp/priceimport/internal/domain/pricing"
	"github.com/erp/priceimport/internal/infrastructure/descriptor"
	"go.uber.org/zap"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// cliOptions holds the global flags
type cliOptions struct {
	logLevel    string
	snapshotDir string
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var opts cliOptions
	fs := flag.NewFlagSet("priceimport", flag.ContinueOnError)
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the configuration")
	fs.StringVar(&opts.snapshotDir, "snapshot-dir", "", "Directory for run snapshots; overrides the configuration")
	fs.Usage = func() { printUsage(fs.Output()) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(fs.Output())
		return errors.New("command required")
	}

	switch rest[0] {
	case "validate":
		if len(rest) != 2 {
			return errors.New("usage: priceimport validate <descriptor>")
		}
		return validateCommand(rest[1], stdout)

	case "import":
		path, dryRun, err := parseImportArgs(rest[1:])
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return importCommand(ctx, opts, path, dryRun, stdout)

	default:
		printUsage(fs.Output())
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

// parseImportArgs accepts --dry-run before or after the descriptor path
func parseImportArgs(args []string) (string, bool, error) {
	var dryRun bool
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&dryRun, "dry-run", false, "Stop before writing to the catalog")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return "", false, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != 1 {
		return "", false, errors.New("usage: priceimport import <descriptor> [--dry-run]")
	}
	return positional[0], dryRun, nil
}

func validateCommand(path string, stdout io.Writer) error {
	d, err := descriptor.Load(path)
	if err != nil {
		return err
	}
	plan, err := descriptor.Compile(d)
	if err != nil {
		return err
	}
	writePlanSummary(stdout, path, plan)
	return nil
}

func writePlanSummary(w io.Writer, path string, plan *priceimport.Plan) {
	fmt.Fprintf(w, "%s: valid\n", path)
	fmt.Fprintf(w, "product %s (%s) for tenant %s\n", plan.Product.Slug, plan.Product.Name, plan.TenantID)
	fmt.Fprintf(w, "mode: %s, vertical axis: %s\n", plan.Mode, plan.VerticalAxis)
	fmt.Fprintf(w, "format: %s\n", plan.Format.Name)
	fmt.Fprintf(w, "materials: %d\n", len(plan.Materials))
	for _, m := range plan.Materials {
		if plan.Mode == priceimport.SourceModeMatrix {
			fmt.Fprintf(w, "  %s <- %q\n", m.Value.Name, m.SourceLabel)
			continue
		}
		fmt.Fprintf(w, "  %s <- %s %s\n", m.Value.Name, m.URL, m.Selector)
	}
	if len(plan.Modifiers) > 0 {
		fmt.Fprintf(w, "modifiers: %d\n", len(plan.Modifiers))
	}
	if plan.Transformer != nil {
		fmt.Fprintf(w, "tiers: %s\n", formatTiers(plan.Transformer.Tiers()))
	}
	if plan.ScopeByFormat {
		fmt.Fprintln(w, "replacement scoped to the format")
	}
}

func formatTiers(tiers []pricing.Tier) string {
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		if t.MaxBase == nil {
			parts[i] = fmt.Sprintf("above x%s", t.Multiplier)
			continue
		}
		parts[i] = fmt.Sprintf("<=%s x%s", t.MaxBase, t.Multiplier)
	}
	return strings.Join(parts, ", ")
}

func importCommand(ctx context.Context, opts cliOptions, path string, dryRun bool, stdout io.Writer) error {
	// Descriptor errors surface before any connection is opened
	d, err := descriptor.Load(path)
	if err != nil {
		return err
	}
	plan, err := descriptor.Compile(d)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, opts, dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	started := time.Now()
	report, err := a.service.Run(ctx, plan, priceimport.RunOptions{DryRun: dryRun})
	if report != nil {
		report.WriteSummary(stdout)
	}
	if err != nil {
		a.logger.Error("import failed",
			zap.String("slug", plan.Product.Slug),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func printError(w io.Writer, err error) {
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	var verr *descriptor.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(w, "priceimport: invalid descriptor")
		for _, f := range verr.Fields {
			fmt.Fprintf(w, "  %s: %s\n", f.Field, f.Message)
		}
		return
	}
	var rerr *priceimport.ReconcileError
	if errors.As(err, &rerr) {
		fmt.Fprintf(w, "priceimport: catalog update failed while %s: %v\n", rerr.Stage, rerr.Err)
		return
	}
	fmt.Fprintf(w, "priceimport: %v\n", err)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Supplier price importer

Usage:
  priceimport [flags] <command> [arguments]

Commands:
  validate <descriptor>            Check a product descriptor and print its plan
  import <descriptor> [--dry-run]  Extract, transform and reconcile prices

Flags:
  -log-level string     Log level: debug, info, warn, error
  -snapshot-dir string  Directory for run snapshots

Settings come from config.toml or PRICEIMPORT_* variables.`)
}
