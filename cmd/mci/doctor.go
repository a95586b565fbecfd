package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/music-indexer/internal/journal"
	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// staleTempAge is how old an orphaned temp file must be before doctor
// flags it. Fresh ones may belong to a write in flight.
const staleTempAge = time.Hour

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure mci can operate correctly.

This command checks:
- Configuration validity (root path, cache duration, log level)
- Music root accessibility (exists, readable, writable)
- Filesystem type (local vs network-mounted)
- Collection index file integrity
- Scan journal accessibility and integrity
- Leftover temp files from interrupted writes
- Disk space availability

Use this command to troubleshoot issues before running mci operations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== MCI Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	// 1. Configuration
	results = append(results, checkConfiguration())

	// The remaining checks need a root to look at.
	root := viper.GetString("root")
	if root != "" {
		results = append(results, checkMusicRoot(root))
		results = append(results, checkFilesystem(root))
		results = append(results, checkRootWritable(root))
		results = append(results, checkIndexFile(root))
		results = append(results, checkJournal(root))
		results = append(results, checkStaleTempFiles(root))
		results = append(results, checkDiskSpace(root))
	}

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running mci.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed! System is ready for mci operations.")
	}

	return nil
}

// checkConfiguration validates the resolved configuration without
// touching the disk.
func checkConfiguration() checkResult {
	cfg := resolveConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return checkResult{
			name:    "Configuration",
			error:   true,
			message: strings.TrimPrefix(err.Error(), "invalid configuration: "),
		}
	}

	cache := fmt.Sprintf("cache %dd", cfg.CacheDays)
	if cfg.CacheDays == 0 {
		cache = "cache disabled"
	}
	return checkResult{
		name:    "Configuration",
		message: fmt.Sprintf("%d workers, %s, log level %s", cfg.Workers, cache, cfg.LogLevel),
	}
}

// checkMusicRoot verifies the music root is a readable directory.
func checkMusicRoot(root string) checkResult {
	info, err := os.Stat(root)
	if err != nil {
		return checkResult{
			name:    "Music root",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", root, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Music root",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", root),
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return checkResult{
			name:    "Music root",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", root, err),
		}
	}

	return checkResult{
		name:    "Music root",
		message: fmt.Sprintf("%s (%d entries)", root, len(entries)),
	}
}

// checkFilesystem reports whether the music root sits on a network
// mount. Scans work there, but mtime-based caching is less reliable
// and metadata writes fall back to retries on transient errors.
func checkFilesystem(root string) checkResult {
	info, err := util.DetectNetworkFilesystem(root)
	if err != nil {
		return checkResult{
			name:    "Filesystem",
			warning: true,
			message: fmt.Sprintf("cannot determine filesystem type: %v", err),
		}
	}

	if info.IsNetwork {
		msg := fmt.Sprintf("network-mounted (%s)", info.Protocol)
		if info.MountPath != "" {
			msg += fmt.Sprintf(" at %s", info.MountPath)
		}
		return checkResult{
			name:    "Filesystem",
			message: msg + "; expect slower scans",
		}
	}

	return checkResult{name: "Filesystem", message: "local"}
}

// checkRootWritable verifies metadata files can be written by creating
// a temp file.
func checkRootWritable(root string) checkResult {
	testFile := filepath.Join(root, ".mci_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Root writable",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", root, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Root writable",
		message: "metadata and index files can be written",
	}
}

// checkIndexFile parses the collection index if one exists.
func checkIndexFile(root string) checkResult {
	path := storage.IndexPath(root)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Collection index",
				message: "not present yet (created on first scan)",
			}
		}
		return checkResult{
			name:    "Collection index",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return checkResult{
			name:    "Collection index",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	var idx model.CollectionIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		if util.FileExists(path + storage.BackupSuffix) {
			return checkResult{
				name:    "Collection index",
				warning: true,
				message: fmt.Sprintf("corrupt (%v), backup present; next scan rebuilds it", err),
			}
		}
		return checkResult{
			name:    "Collection index",
			warning: true,
			message: fmt.Sprintf("corrupt (%v); next scan rebuilds it", err),
		}
	}

	msg := fmt.Sprintf("%d bands, %s", len(idx.Bands), humanize.IBytes(uint64(info.Size())))
	if t := model.ParseTimestamp(idx.LastScan); !t.IsZero() {
		msg += fmt.Sprintf(", last scan %s", humanize.Time(t))
	}
	return checkResult{name: "Collection index", message: msg}
}

// checkJournal opens the scan journal and runs its integrity check.
func checkJournal(root string) checkResult {
	path := journal.Path(root)
	if !util.FileExists(path) {
		return checkResult{
			name:    "Scan journal",
			message: "not present yet (created on first scan)",
		}
	}

	j, err := journal.Open(path)
	if err != nil {
		return checkResult{
			name:    "Scan journal",
			warning: true,
			message: fmt.Sprintf("cannot open %s: %v (scans still work, history is lost)", path, err),
		}
	}
	defer j.Close()

	if err := j.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Scan journal",
			warning: true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	msg := "integrity ok"
	if last, err := j.LastCompletedRun(); err == nil && last != nil {
		msg += fmt.Sprintf(", last completed scan %s (%d bands)",
			relativeTime(last.StartedAt), last.BandsTotal)
	}
	return checkResult{name: "Scan journal", message: msg}
}

// checkStaleTempFiles looks for .tmp leftovers from interrupted writes
// at the root and inside band folders.
func checkStaleTempFiles(root string) checkResult {
	var stale []string

	consider := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if time.Since(info.ModTime()) > staleTempAge {
			stale = append(stale, path)
		}
	}

	consider(storage.IndexPath(root) + storage.TempSuffix)

	entries, err := os.ReadDir(root)
	if err != nil {
		return checkResult{
			name:    "Temp files",
			warning: true,
			message: fmt.Sprintf("cannot inspect %s: %v", root, err),
		}
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		consider(storage.MetadataPath(filepath.Join(root, e.Name())) + storage.TempSuffix)
	}

	if len(stale) > 0 {
		return checkResult{
			name:    "Temp files",
			warning: true,
			message: fmt.Sprintf("%d stale temp file(s) from interrupted writes, e.g. %s", len(stale), stale[0]),
		}
	}
	return checkResult{name: "Temp files", message: "no leftovers from interrupted writes"}
}

// checkDiskSpace verifies available disk space at the music root.
func checkDiskSpace(root string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(root, &stat); err != nil {
		return checkResult{
			name:    "Disk space",
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	availGB := float64(availBytes) / (1024 * 1024 * 1024)
	usedPercent := float64(usedBytes) / float64(totalBytes) * 100

	// Metadata writes are tiny, but a full disk corrupts collections.
	warning := false
	warningMsg := ""
	if availGB < 1 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 95 {
		warning = true
		warningMsg = " (>95% used)"
	}

	return checkResult{
		name:    "Disk space",
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.IBytes(availBytes), warningMsg),
	}
}
