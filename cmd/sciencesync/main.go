package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/sciencesync/internal/config"
	"github.com/TobiSchelling/sciencesync/internal/database"
	"github.com/TobiSchelling/sciencesync/internal/enrich"
	"github.com/TobiSchelling/sciencesync/internal/logger"
	"github.com/TobiSchelling/sciencesync/internal/metrics"
	"github.com/TobiSchelling/sciencesync/internal/pipeline"
	"github.com/TobiSchelling/sciencesync/internal/source"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        = zap.NewNop()
)

func main() {
	metrics.RegisterPipelineMetrics()
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sciencesync",
	Short:   "Group citation alerts into topics",
	Long:    "sciencesync extracts articles from citation alert messages, merges duplicates and clusters them into topic groups.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(cfg.Logging.Env, level)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		cmd.SetContext(logger.ContextWithLogger(cmd.Context(), log))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(suggestKCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("sciencesync", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/sciencesync/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}
		if err := config.Init(target); err != nil {
			return err
		}
		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the alert directory and clustering options.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n", db.Path())
		fmt.Printf("Alert directory: %s\n\n", cfg.GetAlertDir())
		fmt.Println("Articles:")
		fmt.Printf("  Stored: %d\n", stats.Articles)
		fmt.Printf("  Enriched: %d\n", stats.EnrichedArticles)
		fmt.Printf("  Alerts ingested: %d\n", stats.IngestedAlerts)
		fmt.Println("\nClustering:")
		fmt.Printf("  Runs: %d\n", stats.Runs)

		run, err := db.LatestRun()
		if err == nil {
			fmt.Printf("  Latest: %s (%s/%s, k=%d, silhouette %.3f, %s)\n",
				run.ID, run.Algorithm, run.Metric, run.K, run.Silhouette, run.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// --- process command ---

var processJSON bool

var processCmd = &cobra.Command{
	Use:   "process [dir]",
	Short: "Cluster the alerts in a directory without touching the database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.GetAlertDir()
		if len(args) == 1 {
			dir = args[0]
		}
		ctx := cmd.Context()

		loaded, err := source.NewLoader(dir, cfg.Sources.SubjectFilter).Load(ctx)
		if err != nil {
			return err
		}

		enricher, closeEnricher := buildEnricher(ctx)
		defer closeEnricher()

		out, err := pipeline.Process(ctx, loaded.Alerts, pipeline.Options{
			Format:       cfg.Sources.Format,
			Clustering:   cfg.Clustering.Options(),
			LinkIdentity: cfg.Dedup.LinkIdentity,
			Workers:      cfg.Sources.Workers,
			Enricher:     enricher,
		})
		if err != nil {
			return err
		}

		if processJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"groups":      out.View.Groups(),
				"diagnostics": out.Diagnostics,
			})
		}

		d := out.Diagnostics
		fmt.Printf("%d alerts, %d entries (%d skipped, %d unparsable dates), %d duplicates merged\n",
			d.AlertsProcessed, d.EntriesExtracted, d.SkippedEntries, d.UnparsableDates, d.DuplicatesMerged)
		if d.EnrichmentFailures > 0 {
			fmt.Printf("%d enrichment lookups failed\n", d.EnrichmentFailures)
		}
		fmt.Printf("Silhouette %.3f, Davies-Bouldin %.3f, Calinski-Harabasz %.1f, converged %v after %d iterations\n\n",
			d.Silhouette, d.DaviesBouldin, d.CalinskiHarabasz, d.Converged, d.Iterations)
		for _, g := range out.View.Groups() {
			fmt.Printf("[%d] %s (%d)\n", g.Label, g.Name, g.Size)
			for _, r := range g.Records {
				fmt.Printf("    - %s\n", r.Title)
			}
		}
		return nil
	},
}

func init() {
	processCmd.Flags().BoolVar(&processJSON, "json", false, "Print groups and diagnostics as JSON")
}

// --- ingest / enrich / cluster / run commands ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract articles from new alerts and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), func(r *pipeline.Runner) error {
			return printStep(r.Ingest(cmd.Context()))
		})
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch snippets and CrossRef data for stored articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), func(r *pipeline.Runner) error {
			return printStep(r.Enrich(cmd.Context()))
		})
	},
}

var (
	clusterK         int
	clusterAlgorithm string
	clusterMetric    string
	clusterLinkage   string
	clusterSeed      int64
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Cluster stored articles and save the run",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyClusterFlags(cmd); err != nil {
			return err
		}
		window, err := resolveWindow(cmd)
		if err != nil {
			return err
		}
		return withRunner(cmd.Context(), func(r *pipeline.Runner) error {
			r.SetWindow(window)
			step, run := r.Cluster(cmd.Context())
			if err := printStep(step); err != nil {
				return err
			}
			if run.ID != "" {
				fmt.Printf("  Run ID: %s\n", run.ID)
			}
			return nil
		})
	},
}

func init() {
	clusterCmd.Flags().IntVarP(&clusterK, "clusters", "k", 0, "Number of clusters (overrides config)")
	clusterCmd.Flags().StringVar(&clusterAlgorithm, "algorithm", "", "kmeans, kmedoids or agglomerative")
	clusterCmd.Flags().StringVar(&clusterMetric, "metric", "", "jaccard or euclidean")
	clusterCmd.Flags().StringVar(&clusterLinkage, "linkage", "", "single, complete, average or ward")
	clusterCmd.Flags().Int64Var(&clusterSeed, "seed", 0, "Random seed for kmeans")
	addWindowFlags(clusterCmd)
}

// applyClusterFlags overrides the clustering config with explicitly set flags and
// validates the result before any data is read.
func applyClusterFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("clusters") {
		cfg.Clustering.NClusters = clusterK
	}
	if flags.Changed("algorithm") {
		cfg.Clustering.Algorithm = clusterAlgorithm
	}
	if flags.Changed("metric") {
		cfg.Clustering.Metric = clusterMetric
	}
	if flags.Changed("linkage") {
		cfg.Clustering.Linkage = clusterLinkage
	}
	if flags.Changed("seed") {
		cfg.Clustering.Seed = clusterSeed
	}
	return cfg.Clustering.Validate()
}

var (
	windowSince string
	windowUntil string
	windowDays  int
)

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&windowSince, "since", "", "Only articles received on or after this date")
	cmd.Flags().StringVar(&windowUntil, "until", "", "Only articles received before this date")
	cmd.Flags().IntVar(&windowDays, "days-ago", 0, "Only articles received in the last N days (overrides config)")
}

// resolveWindow combines the window flags with the configured days_ago.
func resolveWindow(cmd *cobra.Command) (pipeline.Window, error) {
	days := cfg.Clustering.DaysAgo
	if cmd.Flags().Changed("days-ago") {
		if windowDays < 0 {
			return pipeline.Window{}, fmt.Errorf("--days-ago must not be negative, got %d", windowDays)
		}
		days = windowDays
	}
	return pipeline.ParseWindow(windowSince, windowUntil, days, time.Now())
}

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ingest -> enrich -> cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := resolveWindow(cmd)
		if err != nil {
			return err
		}
		return withRunner(cmd.Context(), func(r *pipeline.Runner) error {
			r.SetWindow(window)
			var result *pipeline.Result
			if dryRun {
				result = r.DryRun(cmd.Context())
			} else {
				result = r.Run(cmd.Context())
			}

			for i, step := range result.Steps {
				fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
				if step.Err != nil {
					fmt.Printf("  Error: %v\n", step.Err)
				} else {
					fmt.Printf("  %s\n", step.Summary)
				}
			}
			if result.Failed() {
				return fmt.Errorf("pipeline failed")
			}
			if !dryRun && result.RunID != "" {
				fmt.Println("\nPipeline complete! Run 'sciencesync export' or 'sciencesync serve' to view the groups.")
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	addWindowFlags(runCmd)
}

// --- suggest-k command ---

var suggestMin, suggestMax int

var suggestKCmd = &cobra.Command{
	Use:   "suggest-k",
	Short: "Score a range of cluster counts by silhouette",
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := resolveWindow(cmd)
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListArticlesReceivedBetween(window.Since, window.Until)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("No articles received %s\n", window)
			return nil
		}
		minK, maxK := cfg.Clustering.SuggestMinK, cfg.Clustering.SuggestMaxK
		if cmd.Flags().Changed("min") {
			minK = suggestMin
		}
		if cmd.Flags().Changed("max") {
			maxK = suggestMax
		}

		scores, best, err := pipeline.SuggestK(cmd.Context(), records, cfg.Clustering.Options(), minK, maxK, cfg.Sources.Workers)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "K\tSILHOUETTE\tDAVIES-BOULDIN\tCALINSKI-HARABASZ\tCONVERGED\t")
		for _, s := range scores {
			mark := ""
			if s.K == best {
				mark = "<- best"
			}
			fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.2f\t%v\t%s\n",
				s.K, s.Silhouette, s.DaviesBouldin, s.CalinskiHarabasz, s.Converged, mark)
		}
		return tw.Flush()
	},
}

func init() {
	suggestKCmd.Flags().IntVar(&suggestMin, "min", 2, "Smallest k to try")
	suggestKCmd.Flags().IntVar(&suggestMax, "max", 10, "Largest k to try")
	addWindowFlags(suggestKCmd)
}

// --- helpers ---

func openDB() (*database.DB, error) {
	return database.Open(cfg.DBPath(), database.WithLogger(log))
}

func withRunner(ctx context.Context, fn func(r *pipeline.Runner) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	enricher, closeEnricher := buildEnricher(ctx)
	defer closeEnricher()

	return fn(pipeline.NewRunner(cfg, db, enricher))
}

func printStep(step pipeline.StepResult) error {
	fmt.Printf("%s:\n", step.Name)
	if step.Err != nil {
		fmt.Printf("  Error: %v\n", step.Err)
		return step.Err
	}
	fmt.Printf("  %s\n", step.Summary)
	return nil
}

// buildEnricher returns nil when no enrichment is enabled. The returned func releases
// the cache connection.
func buildEnricher(ctx context.Context) (pipeline.Enricher, func()) {
	e := cfg.Enrichment
	if !e.FetchSnippets && !e.CrossRef {
		return nil, func() {}
	}

	opts := enrich.Options{Concurrency: e.Concurrency}
	if e.FetchSnippets {
		opts.Snippets = enrich.NewSnippetFetcher(e.Timeout())
	}
	if e.CrossRef {
		opts.CrossRef = enrich.NewCrossRefClient(e.CrossRefURL, e.Mailto, e.Timeout())
	}

	closeFn := func() {}
	if e.Cache.RedisAddr != "" {
		cache := enrich.NewRedisCache(e.Cache.RedisAddr, e.Cache.TTL())
		if err := cache.Ping(ctx); err != nil {
			log.Warn("enrichment cache unavailable, continuing without it",
				zap.String("addr", e.Cache.RedisAddr), zap.Error(err))
			cache.Close()
		} else {
			opts.Cache = cache
			closeFn = func() { cache.Close() }
		}
	}
	return enrich.New(opts), closeFn
}
