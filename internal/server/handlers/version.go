package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/eventwindow/eventwindow/internal/core/window"
)

var (
	buildMu sync.RWMutex
	build   = BuildInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo records the ldflags build metadata reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build.Version, build.Commit, build.BuildDate = version, commit, buildDate
}

// SetAppName sets the binary name reported by /version. When unset the
// executable name is used.
func SetAppName(name string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build.Name = name
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          BuildInfo         `json:"app"`
	Dependencies map[string]string `json:"dependencies"`
	Window       WindowLimits      `json:"window"`
	Runtime      RuntimeInfo       `json:"runtime"`
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// WindowLimits reports the compiled-in bounds of the event window.
type WindowLimits struct {
	Capacity   int    `json:"capacity"`
	MaxLimit   uint32 `json:"max_limit_ticks"`
	CountWidth int    `json:"count_bits"`
}

// RuntimeInfo describes the Go runtime and, where supported, the process.
type RuntimeInfo struct {
	Platform      string       `json:"platform"`
	NumCPU        int          `json:"num_cpu"`
	NumGoroutines int          `json:"num_goroutines"`
	Process       *ProcessInfo `json:"process,omitempty"`
}

// ProcessInfo is gathered with gopsutil.
type ProcessInfo struct {
	PID        int32  `json:"pid"`
	MemoryRSS  uint64 `json:"memory_rss_bytes"`
	NumThreads int32  `json:"num_threads"`
}

// VersionHandler reports build, dependency and runtime details.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	buildMu.RLock()
	app := build
	buildMu.RUnlock()

	if app.Name == "" {
		app.Name = executableName()
	}
	app.GoVersion = runtime.Version()

	deps := crucible.GetVersion()
	writeJSON(w, r, http.StatusOK, VersionResponse{
		App: app,
		Dependencies: map[string]string{
			"gofulmen": deps.Gofulmen,
			"crucible": deps.Crucible,
		},
		Window: WindowLimits{
			Capacity:   window.Capacity,
			MaxLimit:   ^uint32(0),
			CountWidth: 8,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
			Process:       currentProcess(),
		},
	})
}

func executableName() string {
	if len(os.Args) == 0 || os.Args[0] == "" {
		return "unknown"
	}
	return filepath.Base(os.Args[0])
}

// currentProcess returns nil when the platform does not expose process stats.
func currentProcess() *ProcessInfo {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}

	info := &ProcessInfo{PID: pid}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		info.MemoryRSS = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		info.NumThreads = threads
	}
	return info
}
