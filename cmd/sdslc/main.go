package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sdslc/internal/config"
	"sdslc/internal/depgraph"
	"sdslc/internal/diag"
	"sdslc/internal/document"
	"sdslc/internal/evidence"
	"sdslc/internal/fsio"
	"sdslc/internal/ledger"
	"sdslc/internal/model"
	"sdslc/internal/ref"
	"sdslc/internal/report"
	"sdslc/internal/storage"
	"sdslc/internal/writer"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "sdslc",
		Short: "SDSL2 annotation toolchain",
	}
	configPath string
	idPrefix   string
	depsOut    string
	toStdout   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the sdslc YAML config")

	depsgenCmd.Flags().StringVar(&idPrefix, "id-prefix", "DEPS_GEN", "RELID prefix for the generated deps document")
	depsgenCmd.Flags().StringVar(&depsOut, "out", "deps.sdsl2", "Output path, relative to the output root")
	buildCmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the canonical document instead of writing the artifact")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(depsgenCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runsCmd)
}

func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func printRecords(recs []diag.Record) {
	for _, r := range recs {
		line := fmt.Sprintf("%s %s: %s", r.Severity, r.Code, r.Message)
		if r.Path != "" {
			line += " at " + r.Path
		}
		if r.Expected != "" || r.Got != "" {
			line += fmt.Sprintf(" (expected %s, got %s)", r.Expected, r.Got)
		}
		fmt.Fprintln(os.Stderr, line)
	}
}

func saveReport(cfg *config.Config, rep *report.RunReport) {
	rel := filepath.Join("reports", rep.Command+"-"+rep.RunID+".json")
	path, err := fsio.ContainedPath(cfg.Output.Root, rel)
	if err != nil {
		log.Fatalf("Failed to resolve report path: %v", err)
	}
	if err := rep.Save(path); err != nil {
		log.Fatalf("Failed to save report: %v", err)
	}
}

var buildCmd = &cobra.Command{
	Use:   "build <topology.yaml>",
	Short: "Compile a topology ledger into canonical SDSL2",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		rep := report.NewRunReport("build", cfg.Output.Root)

		text, err := fsio.ReadFileNoFollow(args[0])
		if err != nil {
			log.Fatalf("Failed to read ledger: %v", err)
		}

		h := rep.BeginStage("load")
		input, recs := ledger.LoadTopology(string(text))
		recs = cfg.ApplySeverities(recs)
		rep.AddDiagnostics(recs)
		rep.EndStage(h, nil, nil)
		printRecords(recs)

		if input == nil {
			saveReport(cfg, rep)
			os.Exit(1)
		}

		h = rep.BeginStage("emit")
		topo := model.BuildTopology(input)
		rendered := writer.WriteTopology(topo)

		if toStdout {
			rep.EndStage(h, map[string]int{"nodes": len(topo.Nodes), "edges": len(topo.Edges)}, nil)
			saveReport(cfg, rep)
			fmt.Print(rendered)
			return
		}

		rel := input.OutputPath
		if rel == "" {
			rel = "topology_v2.sdsl2"
		}
		path, err := fsio.WriteArtifact(cfg.Output.Root, rel, []byte(rendered))
		rep.EndStage(h, map[string]int{"nodes": len(topo.Nodes), "edges": len(topo.Edges)}, err)
		if err != nil {
			saveReport(cfg, rep)
			log.Fatalf("Failed to write artifact: %v", err)
		}

		saveReport(cfg, rep)
		fmt.Printf("Wrote %s (%d nodes, %d edges)\n", path, len(topo.Nodes), len(topo.Edges))
	},
}

var depsgenCmd = &cobra.Command{
	Use:   "depsgen [path ...]",
	Short: "Harvest doc-comment evidence from Go sources and emit the dependency document",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		rep := report.NewRunReport("depsgen", cfg.Output.Root)

		sources := args
		if len(sources) == 0 {
			sources = cfg.Evidence.Sources
		}
		paths, err := expandSources(sources)
		if err != nil {
			log.Fatalf("Failed to expand sources: %v", err)
		}

		h := rep.BeginStage("harvest")
		harvester := evidence.NewHarvester()
		sites, recs, err := harvester.HarvestFiles(paths)
		rep.EndStage(h, map[string]int{"files": len(paths), "sites": len(sites)}, err)
		if err != nil {
			saveReport(cfg, rep)
			log.Fatalf("Harvest failed: %v", err)
		}

		h = rep.BeginStage("resolve")
		res, buildRecs := depgraph.Build(sites)
		recs = cfg.ApplySeverities(append(recs, buildRecs...))
		rep.AddDiagnostics(recs)
		rep.EndStage(h, map[string]int{"deps": len(res.Deps), "cycles": len(res.Cycles)}, nil)
		printRecords(recs)

		h = rep.BeginStage("emit")
		rendered, err := renderDeps(idPrefix, res.Deps)
		if err == nil {
			_, err = fsio.WriteArtifact(cfg.Output.Root, depsOut, []byte(rendered))
		}
		rep.EndStage(h, nil, err)
		if err != nil {
			saveReport(cfg, rep)
			log.Fatalf("Failed to emit deps: %v", err)
		}

		if cfg.Storage.Path != "" {
			snapshotRun(cfg, rep.RunID, strings.Join(sources, ","), res, recs)
		}

		saveReport(cfg, rep)
		fmt.Printf("Emitted %d deps, %d cycles\n", len(res.Deps), len(res.Cycles))
		if diag.HasErrors(recs) {
			os.Exit(1)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <file.sdsl2 ...>",
	Short: "Validate SDSL2 documents and verify their derived ids",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		rep := report.NewRunReport("check", cfg.Output.Root)

		failed := false
		for _, path := range args {
			h := rep.BeginStage("check " + path)
			recs := checkDocument(path)
			recs = cfg.ApplySeverities(recs)
			rep.AddDiagnostics(recs)
			rep.EndStage(h, map[string]int{"diagnostics": len(recs)}, nil)
			printRecords(recs)
			if diag.HasErrors(recs) {
				failed = true
			}
		}

		if cfg.Storage.Path != "" {
			snapshotRun(cfg, rep.RunID, strings.Join(args, ","), &depgraph.Result{}, rep.Diagnostics)
		}

		saveReport(cfg, rep)
		if failed {
			os.Exit(1)
		}
		fmt.Printf("Checked %d document(s)\n", len(args))
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored dependency build runs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.Storage.Path == "" {
			log.Fatal("No storage.path configured")
		}
		store, err := storage.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(context.Background())
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		for _, info := range runs {
			fmt.Printf("%s  %s  %d deps  %s\n",
				info.RunID, info.CreatedAt.Format(time.RFC3339), info.DepCount, info.Source)
		}
	},
}

func checkDocument(path string) []diag.Record {
	text, err := fsio.ReadFileNoFollow(path)
	if err != nil {
		return []diag.Record{diag.Errorf(diag.CodeSchema, path, "", "", "failed to read document: %v", err)}
	}
	doc, recs := document.Parse(string(text))
	if doc == nil {
		return recs
	}

	var canonical string
	if doc.Profile == ref.ProfileTopology {
		topo, rebuildRecs := document.RebuildTopology(doc)
		recs = append(recs, rebuildRecs...)
		if topo != nil {
			canonical = writer.WriteTopology(topo)
		}
	} else {
		contract, rebuildRecs := document.RebuildContract(doc)
		recs = append(recs, rebuildRecs...)
		if contract != nil {
			canonical = writer.WriteContract(contract)
		}
	}
	if canonical != "" && canonical != string(text) {
		recs = append(recs, diag.Warnf(diag.CodeSchema, path, "document is not in canonical form"))
	}
	return recs
}

// renderDeps wraps emitted deps in a contract document so the output is
// itself a checkable SDSL2 file.
func renderDeps(prefix string, deps []model.Dep) (string, error) {
	b := model.NewBuilder().File(prefix)
	for _, d := range deps {
		b.Dep(d.Bind, d.From, d.To, d.SSOT)
	}
	m, err := b.Build()
	if err != nil {
		return "", err
	}
	return writer.WriteContract(m), nil
}

func snapshotRun(cfg *config.Config, runID, source string, res *depgraph.Result, recs []diag.Record) {
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	snap := &storage.Snapshot{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Source:    source,
		Deps:      res.Deps,
		Cycles:    res.Cycles,
		Records:   recs,
	}
	if err := store.SaveSnapshot(context.Background(), snap); err != nil {
		log.Fatalf("Failed to save snapshot: %v", err)
	}
}

// expandSources turns file and directory arguments into the list of Go files
// to harvest. Hidden and underscore-prefixed directories, vendor trees and
// test files are skipped.
func expandSources(sources []string) ([]string, error) {
	var paths []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, src)
			continue
		}
		err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if path != src && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}
