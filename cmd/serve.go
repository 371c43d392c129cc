package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codescalpel/scalpel/analytics"
	"github.com/codescalpel/scalpel/audit"
	"github.com/codescalpel/scalpel/cache"
	"github.com/codescalpel/scalpel/config"
	"github.com/codescalpel/scalpel/dispatcher"
	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/frontend/java"
	"github.com/codescalpel/scalpel/frontend/javascript"
	"github.com/codescalpel/scalpel/frontend/python"
	"github.com/codescalpel/scalpel/frontend/typescript"
	"github.com/codescalpel/scalpel/mcp"
	"github.com/codescalpel/scalpel/output"
	"github.com/codescalpel/scalpel/policy"
	"github.com/codescalpel/scalpel/taint"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON-RPC tool server for AI coding assistants",
	Long: `Builds the tool-dispatch kernel and serves the JSON-RPC 2.0 tool
protocol over stdio.

Designed for integration with AI coding agents that need structural,
dataflow, taint, and symbolic analysis of a codebase without shelling
out to a separate linter or re-parsing the project on every question.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("project", "p", ".", "Project path indexed for oracle-hint suggestions")
}

func runServe(cmd *cobra.Command, _ []string) error {
	projectPath, _ := cmd.Flags().GetString("project")
	cfg := config.Load()

	logger := output.NewLogger(output.VerbosityDefault)
	if verboseFlag {
		logger = output.NewLogger(output.VerbosityVerbose)
	}

	fe := frontend.NewRegistry(python.New(), javascript.New(), typescript.New(), java.New())
	taintReg := taint.DefaultRegistry()
	ts := dispatcher.NewToolset(fe, taintReg)
	reg := dispatcher.NewRegistry()
	ts.RegisterAll(reg)

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("open cache at %s: %w", cfg.CacheDir, err)
	}

	var sink audit.Sink = audit.DisabledSink{}
	if cfg.AuditPath != "" {
		fileSink, err := audit.NewFileSink(cfg.AuditPath)
		if err != nil {
			return fmt.Errorf("open audit log at %s: %w", cfg.AuditPath, err)
		}
		defer fileSink.Close()
		sink = fileSink
	}

	gate := policy.DefaultGate()
	if cfg.PolicyPath != "" {
		raw, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("read policy document %s: %w", cfg.PolicyPath, err)
		}
		doc, err := policy.LoadDocument(raw)
		if err != nil {
			return err
		}
		if err := gate.RequireSignature(policy.Tier(doc.TierName), doc); err != nil {
			return err
		}
		docs := policy.DefaultDocuments()
		docs[policy.Tier(doc.TierName)] = doc
		gate = policy.NewGate(docs, nil)
	}

	tier := cfg.Tier
	fmt.Fprintf(os.Stderr, "Code Scalpel serving at tier %q\n", tier)

	symbols := indexProjectSymbols(projectPath, fe, logger)

	d := dispatcher.New(reg, gate, c, sink, symbols)

	analytics.ReportEvent(analytics.ServerStarted)
	defer analytics.ReportEvent(analytics.ServerStopped)

	server := mcp.NewServer(d, tier, time.Duration(cfg.SolverTimeoutMs)*time.Millisecond)
	return server.ServeStdio(os.Stdin, os.Stdout, os.Stderr)
}

// indexProjectSymbols crawls projectPath once at startup and returns a
// SymbolSource closure over every discovered name, the known-name
// universe oracle-hint suggestions fuzzy-match against (§4.9). A project
// that fails to crawl (missing path, no recognized files) degrades to an
// empty universe rather than failing startup — oracle hints are a
// convenience, not a correctness requirement.
func indexProjectSymbols(projectPath string, fe *frontend.Registry, logger *output.Logger) dispatcher.SymbolSource {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		abs = projectPath
	}
	names := []string{}
	files, err := dispatcher.CrawlProjectFiles(abs, fe)
	if err != nil {
		logger.Warning("startup project crawl failed: %v", err)
		return func() []string { return names }
	}
	proj := dispatcher.BuildProjectIndex(files, fe)
	for name := range proj.ByName {
		names = append(names, name)
	}
	logger.Statistic("indexed %d files, %d known symbols under %s", len(files), len(names), abs)
	return func() []string { return names }
}
