// Package profiling mounts pprof and runtime stats endpoints. They expose
// goroutine stacks and heap contents, so callers mount them behind admin auth.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/portal/internal/web/response"
)

// Path is where the pprof index is mounted
const Path = "/debug/pprof"

// Config holds profiling configuration
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// BlockRate sets the block profiling rate; zero leaves it off
	BlockRate int `mapstructure:"block_rate"`

	// MutexFraction sets the mutex profiling fraction; zero leaves it off
	MutexFraction int `mapstructure:"mutex_fraction"`
}

// Mount registers the pprof routes and /debug/runtime on router.
// It does nothing unless config.Enabled is set.
func Mount(router chi.Router, config Config) {
	if !config.Enabled {
		return
	}

	if config.BlockRate > 0 {
		runtime.SetBlockProfileRate(config.BlockRate)
	}
	if config.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(config.MutexFraction)
	}

	router.Route(Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)

		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
	router.Get("/debug/runtime", StatsHandler)
}

// Stats is a snapshot of the Go runtime
type Stats struct {
	Goroutines int         `json:"goroutines"`
	NumCPU     int         `json:"num_cpu"`
	Memory     MemoryStats `json:"memory"`
}

// MemoryStats is the subset of runtime.MemStats worth watching
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

// RuntimeStats reads the current runtime statistics
func RuntimeStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Stats{
		Goroutines: runtime.NumGoroutine(),
		NumCPU:     runtime.NumCPU(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	}
}

// StatsHandler serves RuntimeStats as JSON
func StatsHandler(w http.ResponseWriter, r *http.Request) {
	response.OK(w, RuntimeStats())
}
