// awss — interactive S3 browser core.
//
// Resolves which configured AWS profile can access each visible bucket,
// caches the result between runs, and drives the navigation state
// machine behind the browser views. Headless invocations print the
// resolved bucket table; presentation layers subscribe to the event
// broadcaster instead.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/awss/awss/internal/access"
	"github.com/awss/awss/internal/auth"
	"github.com/awss/awss/internal/awsconfig"
	"github.com/awss/awss/internal/browser"
	"github.com/awss/awss/internal/bucketcache"
	"github.com/awss/awss/internal/config"
	"github.com/awss/awss/internal/events"
	"github.com/awss/awss/internal/logging"
	"github.com/awss/awss/internal/metrics"
	"github.com/awss/awss/internal/prefs"
	"github.com/awss/awss/internal/storage"
)

var (
	flagProfiles []string
	flagProfile  string
	flagRegion   string
	flagNoCache  bool
)

var rootCmd = &cobra.Command{
	Use:   "awss",
	Short: "Browse S3 buckets across all configured AWS profiles",
	Long: `awss lists the buckets visible to every configured AWS profile,
probes which profile has the best access to each bucket, and remembers
the result so later runs start instantly.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), false)
	},
}

// buckets is the quiet variant: only the table goes to stdout.
var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "Print the resolved bucket table and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&flagProfiles, "profiles", nil, "profiles to use (default: all configured)")
	flags.StringVarP(&flagProfile, "profile", "p", "", "use a single profile")
	flags.StringVar(&flagRegion, "region", "", "override the AWS region")
	flags.BoolVar(&flagNoCache, "no-cache", false, "ignore and do not write the bucket cache")
	rootCmd.AddCommand(bucketsCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, quiet bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if flagRegion != "" {
		cfg.Region = flagRegion
	}
	if flagNoCache {
		cfg.DisableCache = true
	}
	if quiet {
		cfg.LogLevel = "error"
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return fmt.Errorf("logging init error: %w", err)
	}
	defer logging.Sync()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	store := awsconfig.NewStore()
	profiles := selectProfiles(store)
	logging.Info("awss starting",
		zap.Int("profiles", len(profiles)),
		zap.String("region", cfg.Region),
		zap.Bool("cache", !cfg.DisableCache))

	registry := storage.NewRegistry(cfg.Region)
	coordinator := auth.NewCoordinator(auth.ExecLogin)
	service := storage.NewService(registry, coordinator.Do)
	resolver := access.NewResolver(service, profiles, cfg.ProbeLimit)
	cache := bucketcache.New(cfg.BucketCachePath(), cfg.CacheTTL, store.Fingerprint)
	preferences := prefs.NewStore(cfg.AppConfigPath())
	broadcaster := events.NewBroadcaster()

	controller := browser.New(service, resolver, cache, preferences, broadcaster, browser.Options{
		Profiles:        profiles,
		DeepScanMaxKeys: cfg.DeepScanMaxKeys,
		PreviewBytes:    cfg.PreviewBytes,
		DownloadDir:     cfg.DownloadDir,
		DisableCache:    cfg.DisableCache,
	})

	// Without a UI the event stream goes to the log.
	subscription := broadcaster.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		logEvents(subscription)
	}()

	for _, err := range coordinator.Preflight(ctx, store, profiles) {
		logging.Warn("preflight login failed", zap.Error(err))
	}

	controller.Refresh(ctx, cfg.DisableCache)
	controller.Wait()
	broadcaster.Unsubscribe(subscription)
	<-done

	records := controller.Records()
	if len(records) == 0 {
		logging.Warn("no buckets visible to any profile")
	}
	printTable(records)
	return nil
}

// selectProfiles resolves the profile set: explicit flags win, else
// every profile found in the shared config files, else the ambient
// default identity.
func selectProfiles(store *awsconfig.Store) []awsconfig.Profile {
	if flagProfile != "" {
		return awsconfig.NormalizeProfiles([]string{flagProfile})
	}
	if len(flagProfiles) > 0 {
		return awsconfig.NormalizeProfiles(flagProfiles)
	}
	return awsconfig.NormalizeProfiles(store.AvailableProfiles())
}

func logEvents(ch chan events.Event) {
	for event := range ch {
		switch event.Type {
		case events.EventNotify:
			switch event.Severity {
			case browser.SeverityError:
				logging.Error(event.Message)
			case browser.SeverityWarning:
				logging.Warn(event.Message)
			default:
				logging.Info(event.Message)
			}
		case events.EventProgress:
			logging.Debug("resolving access",
				zap.Int("done", event.Done), zap.Int("total", event.Total))
		}
	}
}

func printTable(records []access.BucketRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BUCKET\tPROFILE\tACCESS\tEMPTY")
	for _, record := range records {
		empty := ""
		if record.IsEmpty {
			empty = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			record.Name, record.Profile.Label(), record.Access, empty)
	}
	w.Flush()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logging.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("metrics server failed", zap.Error(err))
	}
}
