package dataset

import (
	"context"
	"fmt"
	"os"
)

// Environment is the execution context the dataset is provisioned in.
type Environment int

const (
	// Standalone downloads the archive into the local store.
	Standalone Environment = iota
	// Managed reads from a mounted shared drive.
	Managed
)

func (e Environment) String() string {
	switch e {
	case Managed:
		return "managed"
	case Standalone:
		return "standalone"
	default:
		return "unknown"
	}
}

// ParseEnvironment parses "managed", "standalone" or "auto". Auto returns ok=false.
func ParseEnvironment(s string) (env Environment, ok bool, err error) {
	switch s {
	case "managed":
		return Managed, true, nil
	case "standalone":
		return Standalone, true, nil
	case "auto", "":
		return Standalone, false, nil
	default:
		return Standalone, false, fmt.Errorf("unknown environment %q", s)
	}
}

// Probe detects the execution environment. It is consulted on every Resolve.
type Probe interface {
	Detect(ctx context.Context) Environment
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) Environment

// Detect calls f.
func (f ProbeFunc) Detect(ctx context.Context) Environment { return f(ctx) }

// Fixed returns a probe that always reports env.
func Fixed(env Environment) Probe {
	return ProbeFunc(func(context.Context) Environment { return env })
}

// NotebookProbe recognises a hosted notebook runtime by its environment
// markers. It only reads state, so calling it repeatedly is safe.
type NotebookProbe struct {
	// EnvVars are checked for presence; any hit means Managed.
	EnvVars []string
	// Paths are checked for existence; any hit means Managed.
	Paths []string
}

// DefaultNotebookProbe checks the markers of the hosted notebook runtime.
func DefaultNotebookProbe() NotebookProbe {
	return NotebookProbe{
		EnvVars: []string{"COLAB_RELEASE_TAG", "COLAB_GPU"},
		Paths:   []string{"/content", "/opt/google/drive"},
	}
}

// Detect implements Probe.
func (p NotebookProbe) Detect(context.Context) Environment {
	for _, name := range p.EnvVars {
		if _, ok := os.LookupEnv(name); ok {
			return Managed
		}
	}
	for _, path := range p.Paths {
		if _, err := os.Stat(path); err == nil {
			return Managed
		}
	}
	return Standalone
}

// Mounter makes the shared drive available at a mount point.
type Mounter interface {
	Mount(ctx context.Context, mountPoint string) error
}

// MounterFunc adapts a function to Mounter.
type MounterFunc func(ctx context.Context, mountPoint string) error

// Mount calls f.
func (f MounterFunc) Mount(ctx context.Context, mountPoint string) error { return f(ctx, mountPoint) }

// PreMounted expects the platform to have mounted the drive already and
// only checks that the mount point is a readable directory.
type PreMounted struct{}

// Mount implements Mounter.
func (PreMounted) Mount(_ context.Context, mountPoint string) error {
	info, err := os.Stat(mountPoint)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", mountPoint)
	}
	f, err := os.Open(mountPoint)
	if err != nil {
		return err
	}
	return f.Close()
}
