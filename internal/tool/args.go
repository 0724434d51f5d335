package tool

import (
	"fmt"
	"runtime"
	"strconv"
)

// GPU selectors understood by the ncnn tools.
const (
	GPUAuto = "auto"
	GPUCPU  = "-1"
)

// Threads is the ncnn load:proc:save thread split.
type Threads struct {
	Load, Proc, Save int
}

// DefaultThreads keeps one core free for the caller.
func DefaultThreads() Threads {
	proc := runtime.NumCPU() - 1
	if proc < 1 {
		proc = 1
	}
	return Threads{Load: 1, Proc: proc, Save: 2}
}

func (t Threads) String() string {
	return fmt.Sprintf("%d:%d:%d", t.Load, t.Proc, t.Save)
}

// NCNNArgs describes one realesrgan/waifu2x-ncnn-vulkan run.
type NCNNArgs struct {
	Input  string
	Output string
	Scale  int

	// ModelName is passed as -n for tools that select the model by name.
	// Noise is passed as -n instead when UseNoise is set.
	ModelName string
	Noise     int
	UseNoise  bool

	ModelDir string // -m
	Format   string // -f: png, jpg or webp
	GPU      string // -g: GPUAuto or GPUCPU
	Tile     int    // -t; 0 lets the tool choose
	Threads  Threads
}

// Build returns the argument slice (without the executable).
func (a NCNNArgs) Build() []string {
	args := make([]string, 0, 18)
	args = append(args, "-i", a.Input, "-o", a.Output, "-s", strconv.Itoa(a.Scale))

	switch {
	case a.UseNoise:
		args = append(args, "-n", strconv.Itoa(a.Noise))
	case a.ModelName != "":
		args = append(args, "-n", a.ModelName)
	}
	if a.ModelDir != "" {
		args = append(args, "-m", a.ModelDir)
	}
	if a.Format != "" {
		args = append(args, "-f", a.Format)
	}
	gpu := a.GPU
	if gpu == "" {
		gpu = GPUAuto
	}
	args = append(args, "-g", gpu)
	if a.Tile > 0 {
		args = append(args, "-t", strconv.Itoa(a.Tile))
	}

	th := a.Threads
	if th == (Threads{}) {
		th = DefaultThreads()
	}
	args = append(args, "-j", th.String())
	return args
}
