// ATVM: Round Driver for CIYAM-style Automated Transactions
//
// This is the main entry point for atvm, a standalone host that deploys,
// persists, and steps Automated Transaction machines, and exposes their
// state over a JSON-RPC inspection API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ciyamat/atvm/pkg/atvmlog"
	"github.com/ciyamat/atvm/pkg/metrics"
	"github.com/ciyamat/atvm/pkg/rpc"
	"github.com/ciyamat/atvm/pkg/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildTime = "unknown"
)

// Configuration flags
var (
	configFile       = flag.String("config", "/root/.config/atvm/config.json", "Path to JSON configuration file")
	dataDir          = flag.String("data-dir", "", "Data directory for machine state")
	logLevel         = flag.String("log-level", "", "Log level: debug, info, warn, error")
	rpcAddr          = flag.String("rpc-addr", "", "RPC server listen address")
	enableRPC        = flag.Bool("enable-rpc", false, "Enable JSON-RPC server")
	feePerStep       = flag.Uint64("fee-per-step", 0, "Fee charged per executed step")
	maxStepsPerRound = flag.Uint("max-steps-per-round", 0, "Maximum steps charged in a single round")
	showVersion      = flag.Bool("version", false, "Print version and exit")
	showStats        = flag.Bool("stats", false, "Show statistics periodically")
	enableMetrics    = flag.Bool("enable-metrics", false, "Enable Prometheus metrics server")
	metricsAddr      = flag.String("metrics-addr", "", "Metrics server listen address")
)

// Config represents the JSON configuration file structure.
type Config struct {
	RPC       RPCConfig       `json:"rpc"`
	Metrics   MetricsConfig   `json:"metrics"`
	Execution ExecutionConfig `json:"execution"`
	General   GeneralConfig   `json:"general"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	ServerEnabled bool   `json:"server_enabled"`
	ServerAddr    string `json:"server_addr"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// ExecutionConfig holds the fee schedule applied to every deployed machine's
// ledger.
type ExecutionConfig struct {
	FeePerStep       uint64 `json:"fee_per_step"`
	MaxStepsPerRound uint32 `json:"max_steps_per_round"`
}

// GeneralConfig holds general application settings.
type GeneralConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		RPC: RPCConfig{
			ServerEnabled: false,
			ServerAddr:    ":8899",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Execution: ExecutionConfig{
			FeePerStep:       1,
			MaxStepsPerRound: 500,
		},
		General: GeneralConfig{
			DataDir:  "/mnt/atvm",
			LogLevel: "info",
		},
	}
}

// loadConfig loads configuration from the specified JSON file.
// If the file doesn't exist, it returns the default configuration.
// CLI flags override config file values when explicitly set.
func loadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults", configPath)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	log.Printf("Loaded configuration from %s", configPath)
	return cfg, nil
}

// applyConfigWithCLIOverrides applies config values and lets CLI flags
// override them. This function checks if CLI flags were explicitly set and
// uses those values, otherwise it uses values from the config file.
func applyConfigWithCLIOverrides(cfg Config) {
	flagSet := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		flagSet[f.Name] = true
	})

	// RPC settings
	if !flagSet["enable-rpc"] {
		*enableRPC = cfg.RPC.ServerEnabled
	}
	if !flagSet["rpc-addr"] {
		*rpcAddr = cfg.RPC.ServerAddr
	}

	// Metrics settings
	if !flagSet["enable-metrics"] {
		*enableMetrics = cfg.Metrics.Enabled
	}
	if !flagSet["metrics-addr"] {
		*metricsAddr = cfg.Metrics.Addr
	}

	// Execution settings
	if !flagSet["fee-per-step"] {
		*feePerStep = cfg.Execution.FeePerStep
	}
	if !flagSet["max-steps-per-round"] {
		*maxStepsPerRound = uint(cfg.Execution.MaxStepsPerRound)
	}

	// General settings
	if !flagSet["data-dir"] {
		*dataDir = cfg.General.DataDir
	}
	if !flagSet["log-level"] {
		*logLevel = cfg.General.LogLevel
	}
}

// RoundDriver owns the machine store and records the process start time used
// by the statistics banners. The actual round-by-round stepping happens inside pkg/rpc's
// runRound handler, against per-machine ledgers held there; RoundDriver's
// job is the surrounding lifecycle: opening/closing the store and keeping
// the deployed-machine gauge current.
type RoundDriver struct {
	s       store.Store
	metrics *metrics.Metrics

	stats  DriverStats
	closed atomic.Bool
	mu     sync.RWMutex
}

// DriverStats tracks process-lifetime statistics.
type DriverStats struct {
	mu        sync.Mutex
	StartTime time.Time
}

// NewRoundDriver creates a new round driver backed by s.
func NewRoundDriver(s store.Store) *RoundDriver {
	return &RoundDriver{
		s:     s,
		stats: DriverStats{StartTime: time.Now()},
	}
}

// SetMetrics sets the metrics collector for the driver.
func (d *RoundDriver) SetMetrics(m *metrics.Metrics) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metrics = m
}

// Run blocks, periodically refreshing the deployed-machine gauge, until ctx
// is cancelled. The RPC server (started separately) is what actually
// advances any individual machine's rounds and blocks.
func (d *RoundDriver) Run(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.mu.RLock()
			m := d.metrics
			d.mu.RUnlock()
			if m != nil {
				m.UpdateMachinesDeployed(d.s.Count())
			}
		}
	}
}

// Close gracefully stops the round driver, closing its store.
func (d *RoundDriver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.s.Close()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("atvm %s (%s)\n", Version, GitCommit)
		fmt.Printf("Build time: %s\n", BuildTime)
		fmt.Println()
		fmt.Println("Round driver for CIYAM-style Automated Transactions")
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting atvm %s", Version)
	log.Println()
	log.Println("    _  _____ _    ____  __")
	log.Println("   / \\|_   _| |  |  _ \\/ _|")
	log.Println("  / _ \\ | | | |  | | | | |_")
	log.Println(" / ___ \\| | | |__| |_| |  _|")
	log.Println("/_/   \\_\\_| |_____|____/|_|")
	log.Println()
	log.Println(" Round Driver for Automated Transactions")
	log.Println()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	applyConfigWithCLIOverrides(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var logger atvmlog.Logger
	if *logLevel == "debug" {
		logger = atvmlog.New("[atvm] ")
	} else {
		logger = atvmlog.Nop()
	}

	log.Printf("Initializing machine store at %s", *dataDir)
	var s store.Store
	var storePath string
	if *dataDir == ":memory:" || *dataDir == "" {
		tmp, err := os.MkdirTemp("", "atvm-store-")
		if err != nil {
			log.Fatalf("Failed to create temporary data directory: %v", err)
		}
		s, err = store.NewBadgerStore(tmp)
		if err != nil {
			log.Fatalf("Failed to open machine store: %v", err)
		}
		storePath = tmp
		log.Printf("Using ephemeral store at %s (no data directory configured)", tmp)
	} else {
		if err := os.MkdirAll(*dataDir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		s, err = store.NewBadgerStore(*dataDir)
		if err != nil {
			log.Fatalf("Failed to open machine store: %v", err)
		}
		storePath = *dataDir
		log.Printf("Opened BadgerDB at %s", *dataDir)
	}
	defer s.Close()

	driver := NewRoundDriver(s)

	log.Println()
	log.Println("Configuration:")
	log.Printf("  Config file:           %s", *configFile)
	log.Printf("  Data directory:        %s", *dataDir)
	log.Printf("  Log level:             %s", *logLevel)
	log.Printf("  Fee per step:          %d", *feePerStep)
	log.Printf("  Max steps per round:   %d", *maxStepsPerRound)
	log.Println()

	var rpcServer *rpc.Server
	var metricsServer *metrics.Server
	var metricsCollector *metrics.Metrics
	var metricsSampler *metrics.Sampler

	if *enableMetrics {
		metricsCollector = metrics.NewMetrics()
		driver.SetMetrics(metricsCollector)
		metricsHealth := metrics.NewHealth(metricsCollector, nil)
		metricsServer = metrics.NewServer(*metricsAddr, metricsCollector, metricsHealth)
		if err := metricsServer.Start(); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
		metricsSampler = metrics.NewSampler(metricsCollector, 15*time.Second, storePath)
		metricsSampler.Start(ctx)
		log.Printf("Prometheus metrics server listening on %s", metricsServer.Addr())
	}

	if *enableRPC {
		rpcServer = rpc.NewServer(*rpcAddr, s, logger, metricsCollector, *feePerStep, uint32(*maxStepsPerRound))
		go func() {
			log.Printf("JSON-RPC server listening on %s", *rpcAddr)
			if err := rpcServer.Start(ctx); err != nil {
				log.Printf("RPC server error: %v", err)
			}
		}()
	}

	var statsTicker *time.Ticker
	if *showStats {
		statsTicker = time.NewTicker(30 * time.Second)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-statsTicker.C:
					elapsed := time.Since(driver.stats.StartTime)
					log.Println()
					log.Println("=== Round Driver Statistics ===")
					log.Printf("  Uptime:              %s", elapsed.Round(time.Second))
					log.Printf("  Machines deployed:   %d", s.Count())
					log.Println("================================")
					log.Println()
				}
			}
		}()
	}

	driverDone := make(chan error, 1)
	go func() {
		driverDone <- driver.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	case err := <-driverDone:
		if err != nil && err != context.Canceled {
			log.Printf("Round driver error: %v", err)
		}
	}

	if statsTicker != nil {
		statsTicker.Stop()
	}

	log.Println("Shutting down...")

	if rpcServer != nil {
		log.Println("Stopping RPC server...")
		if err := rpcServer.Stop(); err != nil {
			log.Printf("Error stopping RPC server: %v", err)
		}
	}

	if metricsServer != nil {
		log.Println("Stopping metrics server...")
		metricsSampler.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Printf("Error stopping metrics server: %v", err)
		}
		shutdownCancel()
	}

	if err := driver.Close(); err != nil {
		log.Printf("Error closing round driver: %v", err)
	}

	elapsed := time.Since(driver.stats.StartTime)
	log.Println()
	log.Println("=== Final Statistics ===")
	log.Printf("  Total runtime:       %s", elapsed.Round(time.Second))
	log.Printf("  Final machine count: %d", s.Count())
	log.Println("========================")
	log.Println()
	log.Println("atvm stopped gracefully")
}
