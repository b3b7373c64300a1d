package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/metaforge/internal/config"
	"github.com/conneroisu/metaforge/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the metadata engine's runtime environment",
	Long: `Diagnose the environment the metadata engine will run in and check for
common misconfiguration.

The doctor command checks for:
- Configuration file validity
- Availability of the extractor binary
- Writability of the cache directory
- Reachability of the structured store
- Go environment and filesystem permissions

Examples:
  metaforge doctor                  # Full environment diagnosis
  metaforge doctor --verbose        # Detailed diagnostic output
  metaforge doctor --format json    # Output as JSON for tooling`,
	RunE: runDoctor,
}

var (
	doctorVerbose bool
	doctorFormat  string
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name       string                 `json:"name" yaml:"name"`
	Category   string                 `json:"category" yaml:"category"`
	Status     string                 `json:"status" yaml:"status"` // "ok", "warning", "error", "info"
	Message    string                 `json:"message" yaml:"message"`
	Suggestion string                 `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp   time.Time          `json:"timestamp" yaml:"timestamp"`
	Environment map[string]string  `json:"environment" yaml:"environment"`
	Results     []DiagnosticResult `json:"results" yaml:"results"`
	Summary     ReportSummary      `json:"summary" yaml:"summary"`
}

// ReportSummary provides an overview of diagnostic results
type ReportSummary struct {
	Total    int `json:"total" yaml:"total"`
	OK       int `json:"ok" yaml:"ok"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Errors   int `json:"errors" yaml:"errors"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "Show verbose diagnostic information")
	doctorCmd.Flags().StringVarP(&doctorFormat, "format", "f", "table", "Output format (table|json|yaml)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fmt.Println("metaforge environment doctor")
	fmt.Println("=============================")
	fmt.Println()

	report := &DoctorReport{
		Timestamp:   time.Now(),
		Environment: gatherEnvironmentInfo(),
		Results:     []DiagnosticResult{},
	}

	checks := []func(context.Context, *config.Config) DiagnosticResult{
		checkConfiguration,
		checkGoEnvironment,
		checkExtractorBinary,
		checkCacheDirectory,
		checkStructuredStore,
		checkFileSystemPermissions,
		checkPortAvailability,
	}

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = &config.Config{}
	}

	for _, check := range checks {
		result := check(ctx, cfg)
		report.Results = append(report.Results, result)
		displayResult(result)
	}

	report.Summary = calculateSummary(report.Results)

	fmt.Println("Summary")
	fmt.Println("=======")
	displaySummary(report.Summary)

	if doctorFormat != "table" {
		fmt.Println("\nDetailed report")
		fmt.Println("===============")
		if err := outputReport(report, doctorFormat); err != nil {
			return fmt.Errorf("failed to output report: %w", err)
		}
	}

	return nil
}

func gatherEnvironmentInfo() map[string]string {
	env := map[string]string{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
		"user":       os.Getenv("USER"),
	}
	if wd, err := os.Getwd(); err == nil {
		env["working_dir"] = wd
	}
	return env
}

func checkConfiguration(ctx context.Context, cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{Name: "Configuration", Category: "Configuration", Status: "ok"}

	if _, err := config.Load(); err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("configuration is invalid: %v", err)
		result.Suggestion = "fix the reported field in .metaforge.yml or the corresponding METAFORGE_ env var"
		return result
	}

	result.Message = "configuration loaded successfully"
	result.Details = map[string]interface{}{
		"loader_max_workers": cfg.Loader.MaxWorkers,
		"cache_dir":          cfg.Cache.CacheDir,
		"companion_enabled":  cfg.Companion.Enabled,
		"store_driver":       cfg.Store.Driver,
	}
	return result
}

func checkGoEnvironment(ctx context.Context, cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{Name: "Go Environment", Category: "Environment", Status: "ok"}
	result.Message = fmt.Sprintf("Go runtime: %s", runtime.Version())
	result.Details = map[string]interface{}{"gomaxprocs": runtime.GOMAXPROCS(0)}
	return result
}

func checkExtractorBinary(ctx context.Context, cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{Name: "Extractor Binary", Category: "Tools", Status: "ok"}

	binary := cfg.Extractor.BinaryPath
	if binary == "" {
		binary = "exiftool"
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("extractor binary %q not found on PATH", binary)
		result.Suggestion = "install exiftool or set extractor.binary_path to a reachable binary"
		return result
	}

	cmd := exec.CommandContext(ctx, binary, "-ver")
	output, err := cmd.Output()
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("found %s but could not run '%s -ver'", path, binary)
		return result
	}

	result.Message = fmt.Sprintf("extractor binary found: %s (version %s)", path, strings.TrimSpace(string(output)))
	result.Details = map[string]interface{}{"path": path}
	return result
}

func checkCacheDirectory(ctx context.Context, cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{Name: "Cache Directory", Category: "Storage", Status: "ok"}

	dir := cfg.Cache.CacheDir
	if dir == "" {
		dir = ".metaforge/cache"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("cannot create cache directory %s: %v", dir, err)
		result.Suggestion = "check directory permissions or change cache.cache_dir"
		return result
	}

	probe := dir + "/.doctor-probe"
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("cache directory %s is not writable: %v", dir, err)
		return result
	}
	os.Remove(probe)

	result.Message = fmt.Sprintf("cache directory %s is writable", dir)
	return result
}

func checkStructuredStore(ctx context.Context, cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{Name: "Structured Store", Category: "Storage", Status: "ok"}

	if cfg.Store.Driver == "" {
		result.Status = "warning"
		result.Message = "no structured store driver configured; structured field queries are disabled"
		result.Suggestion = "set store.driver (sqlite3 or mysql) and store.dsn to enable the structured store"
		return result
	}

	s, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("cannot open structured store: %v", err)
		result.Suggestion = "check store.driver and store.dsn"
		return result
	}
	defer s.Close()

	result.Message = fmt.Sprintf("structured store reachable (%s)", cfg.Store.Driver)
	result.Details = map[string]interface{}{"driver": cfg.Store.Driver, "dsn": cfg.Store.DSN}
	return result
}

func checkFileSystemPermissions(ctx context.Context, cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{Name: "File System Permissions", Category: "System", Status: "ok"}

	testFile := ".metaforge-permission-test"
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		result.Status = "error"
		result.Message = "cannot write to current directory"
		result.Suggestion = "check directory permissions or change to a writable directory"
		return result
	}
	os.Remove(testFile)

	result.Message = "file system permissions are adequate"
	return result
}

func checkPortAvailability(ctx context.Context, cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{Name: "Loopback Networking", Category: "Network", Status: "ok"}

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		result.Status = "warning"
		result.Message = "cannot bind to localhost; any future network-facing tooling may not work"
		return result
	}
	listener.Close()

	result.Message = "loopback networking is working"
	return result
}

func displayResult(result DiagnosticResult) {
	var marker string
	switch result.Status {
	case "ok":
		marker = "[ OK ]"
	case "warning":
		marker = "[WARN]"
	case "error":
		marker = "[FAIL]"
	default:
		marker = "[INFO]"
	}

	fmt.Printf("%s %s: %s\n", marker, result.Name, result.Message)
	if result.Suggestion != "" {
		fmt.Printf("       -> %s\n", result.Suggestion)
	}
	if doctorVerbose && len(result.Details) > 0 {
		fmt.Printf("       details: %+v\n", result.Details)
	}
}

func calculateSummary(results []DiagnosticResult) ReportSummary {
	summary := ReportSummary{Total: len(results)}
	for _, result := range results {
		switch result.Status {
		case "ok":
			summary.OK++
		case "warning":
			summary.Warnings++
		case "error":
			summary.Errors++
		}
	}
	return summary
}

func displaySummary(summary ReportSummary) {
	fmt.Printf("Total checks: %d\n", summary.Total)
	fmt.Printf("OK: %d, Warnings: %d, Errors: %d\n", summary.OK, summary.Warnings, summary.Errors)
}

func outputReport(report *DoctorReport, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		defer encoder.Close()
		return encoder.Encode(report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
