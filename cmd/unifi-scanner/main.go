// Command unifi-scanner is a network monitoring daemon for UniFi-family
// controllers: it polls events, classifies and dedups findings, analyzes
// IPS activity and device health, and delivers periodic reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/unifiscan/unifi-scanner/internal/analysis"
	"github.com/unifiscan/unifi-scanner/internal/collector"
	"github.com/unifiscan/unifi-scanner/internal/config"
	"github.com/unifiscan/unifi-scanner/internal/delivery"
	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/health"
	"github.com/unifiscan/unifi-scanner/internal/history"
	"github.com/unifiscan/unifi-scanner/internal/integrations"
	"github.com/unifiscan/unifi-scanner/internal/logging"
	"github.com/unifiscan/unifi-scanner/internal/metrics"
	"github.com/unifiscan/unifi-scanner/internal/report"
	"github.com/unifiscan/unifi-scanner/internal/retry"
	"github.com/unifiscan/unifi-scanner/internal/scheduler"
	"github.com/unifiscan/unifi-scanner/internal/state"
	"github.com/unifiscan/unifi-scanner/pkg/unifi"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Exit codes. Monitoring wrappers key off these.
const (
	exitOK         = 0
	exitConfig     = 1
	exitConnection = 2
	exitAuth       = 3
)

var (
	configPath string
	runOnce    bool
)

func main() {
	root := &cobra.Command{
		Use:           "unifi-scanner",
		Short:         "Network monitoring daemon for UniFi controllers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	root.Flags().BoolVar(&runOnce, "once", false, "run a single scan tick and exit")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("unifi-scanner %s\n", Version)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "sites",
		Short: "List the controller sites visible to the configured account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSites(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(exitConfig)
			}
			if err := cfg.ValidateWritable(); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(exitConfig)
			}
			fmt.Println("configuration ok")
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Fatal error")
		if hint := scanerrors.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case scanerrors.IsAuthError(err):
		return exitAuth
	case scanerrors.IsConnectionError(err):
		return exitConnection
	default:
		return exitConfig
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitConfig)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "unifi-scanner",
		FilePath:  cfg.LogFile,
	})
	defer logging.Shutdown()

	log.Info().
		Str("version", Version).
		Str("controller", cfg.Host).
		Str("site", siteName(cfg)).
		Dur("pollInterval", cfg.PollInterval).
		Msg("unifi-scanner starting")

	if err := cfg.ValidateWritable(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitConfig)
	}

	healthWriter := health.NewWriter(cfg.HealthFilePath)
	_ = healthWriter.Set(health.StatusStarting, "")

	metricsServer := metrics.NewServer(cfg.MetricsPort)
	metricsServer.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGHUP and config file changes both request a rebuild with the new
	// configuration.
	reload := make(chan *config.Config, 1)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			fresh, err := config.Load(configPath)
			if err != nil {
				log.Warn().Err(err).Msg("SIGHUP reload skipped: configuration invalid")
				continue
			}
			select {
			case reload <- fresh:
			default:
			}
		}
	}()

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(fresh *config.Config) {
			select {
			case reload <- fresh:
			default:
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config watcher unavailable, continuing without live reload")
		} else if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Config watcher failed to start")
		} else {
			defer watcher.Stop()
		}
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	for {
		fresh, err := runScanner(ctx, cfg, healthWriter, reload)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errReloadRequested):
			cfg = fresh
			log.Info().Msg("Restarting scan loop with new configuration")
			continue
		case errors.Is(err, context.Canceled):
			log.Info().Msg("Shutdown complete")
			return nil
		default:
			_ = healthWriter.Set(health.StatusUnhealthy, err.Error())
			return err
		}
	}
}

var errReloadRequested = errors.New("configuration reload requested")

// listSites authenticates once and prints the sites the account can see,
// for operators picking a site value for the configuration.
func listSites(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitConfig)
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: "warn", Component: "unifi-scanner"})
	defer logging.Shutdown()

	client, err := unifi.NewClient(unifi.ClientConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		VerifySSL:      cfg.VerifyTLS(),
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	if err := client.Authenticate(ctx); err != nil {
		return err
	}
	defer client.Logout(ctx)

	sites, err := client.ListSites(ctx)
	if err != nil {
		return err
	}
	for _, site := range sites {
		if site.Description != "" && site.Description != site.Name {
			fmt.Printf("%s\t%s\n", site.Name, site.Description)
			continue
		}
		fmt.Println(site.Name)
	}
	return nil
}

func siteName(cfg *config.Config) string {
	if cfg.Site != "" {
		return cfg.Site
	}
	return "default"
}

// runScanner builds the pipeline from cfg and runs it until shutdown, reload,
// or a fatal startup error. On errReloadRequested the fresh configuration is
// returned alongside.
func runScanner(ctx context.Context, cfg *config.Config, healthWriter *health.Writer, reload <-chan *config.Config) (*config.Config, error) {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.MaxRetries

	client, err := unifi.NewClient(unifi.ClientConfig{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		VerifySSL:      cfg.VerifyTLS(),
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Retry:          retryCfg,
	})
	if err != nil {
		return nil, scanerrors.New(scanerrors.ErrorTypeConfig, "build_client", cfg.Host,
			fmt.Errorf("%w: %v", scanerrors.ErrInvalidConfig, err))
	}

	kind, err := client.DetectDeviceType(ctx)
	if err != nil {
		return nil, err
	}
	client.SetSite(siteName(cfg))

	renderer, err := report.NewRenderer(cfg.Location())
	if err != nil {
		return nil, err
	}

	var channels []delivery.Channel
	if cfg.ReportsDir != "" {
		channels = append(channels, delivery.NewFileChannel(cfg.ReportsDir))
	}
	if cfg.SMTP.Enabled() {
		channels = append(channels, delivery.NewEmailChannel(cfg.SMTP, retryCfg))
	}

	var historyStore *history.Store
	if cfg.StateDir != "" {
		historyStore, err = history.Open(cfg.StateDir + "/findings.db")
		if err != nil {
			log.Warn().Err(err).Msg("Finding history unavailable, dedup state will not survive restarts")
		} else {
			defer historyStore.Close()
		}
	}

	var integs []integrations.Integration
	if rep := integrations.NewIPReputation(cfg.Integrations.IPReputation); rep != nil {
		integs = append(integs, rep)
	}

	sched := scheduler.New(scheduler.Deps{
		Session:        client,
		Collector:      collector.New(client, siteName(cfg), time.Duration(cfg.InitialLookbackHours)*time.Hour, collector.NewSSHFallback(cfg.SSH)),
		Engine:         analysis.NewEngine(nil),
		IPSAnalyzer:    analysis.NewIPSAnalyzer(cfg.IPSourceThreshold),
		HealthAnalyzer: analysis.NewHealthAnalyzer(analysis.DefaultHealthThresholds()),
		Renderer:       renderer,
		Deliverer:      delivery.NewManager(channels...),
		State:          state.NewStore(cfg.StateDir),
		History:        historyStore,
		Health:         healthWriter,
		Integrations:   integrations.NewRunner(integs...),
		Site:           siteName(cfg),
		ControllerType: string(kind),
		DedupWindow:    cfg.DedupWindow,
		PollInterval:   cfg.PollInterval,
	})

	if runOnce {
		return nil, sched.Tick(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sched.Run(runCtx) }()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return nil, context.Canceled
	case fresh := <-reload:
		cancel()
		<-done
		return fresh, errReloadRequested
	case err := <-done:
		return nil, err
	}
}
