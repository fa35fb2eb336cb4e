package sandbox

import "time"

const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

// Limits bounds a single process.
type Limits struct {
	Timeout        time.Duration // wall clock; the process group is killed on expiry
	CPUSeconds     int
	MemoryMB       int // address space
	FileSizeMB     int // largest file the process may write
	MaxOutputBytes int // per captured stream
}

// Policy defines the limits for both pipeline steps plus the container
// settings used by the docker backend.
type Policy struct {
	Compile Limits
	Run     Limits

	Network   bool   // whether programs may reach the network (docker only)
	Image     string // Docker image providing rustc
	CPUs      string // Docker --cpus value (e.g. "1")
	PidsLimit int
}

// DefaultPolicy returns the ceilings the service runs with unless configured
// otherwise.
func DefaultPolicy() Policy {
	return Policy{
		Compile: Limits{
			Timeout:        30 * time.Second,
			CPUSeconds:     30,
			MemoryMB:       4096,
			FileSizeMB:     128,
			MaxOutputBytes: 1 << 20,
		},
		Run: Limits{
			Timeout:        10 * time.Second,
			CPUSeconds:     5,
			MemoryMB:       256,
			FileSizeMB:     16,
			MaxOutputBytes: 1 << 20,
		},
		Network:   false,
		Image:     "rust:1-slim",
		CPUs:      "1",
		PidsLimit: 64,
	}
}
