package transform

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/job"
	"github.com/backmassage/pixmaster/internal/tool"
)

// Model is one network shipped with a tool family.
type Model struct {
	Name   string
	Scales []int
}

// Family is an ncnn upscaler tool and the models it ships with.
type Family struct {
	Name   string
	Binary string
	Models []Model

	// CPU reports whether the tool can run with -g -1.
	CPU bool

	// Noise reports whether -n selects a noise level (else a model name).
	Noise              bool
	NoiseMin, NoiseMax int
}

var (
	RealESRGAN = Family{
		Name:   "realesrgan",
		Binary: "realesrgan-ncnn-vulkan",
		Models: []Model{
			{Name: "realesrgan-x4plus", Scales: []int{4}},
			{Name: "realesrgan-x4plus-anime", Scales: []int{4}},
			{Name: "realesr-animevideov3", Scales: []int{2, 3, 4}},
		},
	}

	Waifu2x = Family{
		Name:   "waifu2x",
		Binary: "waifu2x-ncnn-vulkan",
		Models: []Model{
			{Name: "models-cunet", Scales: []int{1, 2, 4}},
			{Name: "models-upconv_7_anime_style_art_rgb", Scales: []int{2, 4}},
			{Name: "models-upconv_7_photo", Scales: []int{2, 4}},
		},
		CPU:      true,
		Noise:    true,
		NoiseMin: -1,
		NoiseMax: 3,
	}

	// Families lists every supported tool family.
	Families = []Family{RealESRGAN, Waifu2x}
)

// LookupFamily finds a family by name (case-insensitive).
func LookupFamily(name string) (Family, bool) {
	for _, f := range Families {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Family{}, false
}

// familyOfModel finds the family that ships model.
func familyOfModel(model string) (Family, Model, bool) {
	for _, f := range Families {
		if m, ok := f.Model(model); ok {
			return f, m, true
		}
	}
	return Family{}, Model{}, false
}

// Model finds a model of f by name.
func (f Family) Model(name string) (Model, bool) {
	for _, m := range f.Models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Model{}, false
}

// DefaultModel is the first model of the family.
func (f Family) DefaultModel() Model { return f.Models[0] }

// Scales is the union of the models' scales, ascending.
func (f Family) Scales() []int {
	seen := map[int]bool{}
	var out []int
	for s := 1; s <= 4; s++ {
		for _, m := range f.Models {
			if m.Supports(s) && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Supports reports whether the model runs at scale.
func (m Model) Supports(scale int) bool {
	for _, s := range m.Scales {
		if s == scale {
			return true
		}
	}
	return false
}

// MaxScale is the largest scale the model supports.
func (m Model) MaxScale() int { return m.Scales[len(m.Scales)-1] }

// Executable is <toolsDir>/<binary>/<binary>[.exe].
func (f Family) Executable(toolsDir string) string {
	return filepath.Join(toolsDir, f.Binary, config.ExecutableName(f.Binary))
}

// ModelDir is the -m argument for model.
func (f Family) ModelDir(toolsDir string, m Model) string {
	if f.Noise {
		return filepath.Join(toolsDir, f.Binary, m.Name)
	}
	return filepath.Join(toolsDir, f.Binary, "models")
}

func allModelNames() []string {
	var names []string
	for _, f := range Families {
		for _, m := range f.Models {
			names = append(names, m.Name)
		}
	}
	return names
}

func familyNames() []string {
	names := make([]string, len(Families))
	for i, f := range Families {
		names[i] = f.Name
	}
	return names
}

// Device settings.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
)

// toolFormats are the outputs the ncnn tools can write.
var toolFormats = []codec.Format{codec.PNG, codec.JPEG, codec.WEBP}

func isToolFormat(f codec.Format) bool {
	for _, t := range toolFormats {
		if t == f {
			return true
		}
	}
	return false
}

// upscaleParams is a fully resolved tool run configuration.
type upscaleParams struct {
	family Family
	model  Model
	scale  int
	noise  int
	cpu    bool
}

// resolveUpscale reads family/model/scale/noise/device from opts and
// enforces the per-family rules. Errors are *job.ConfigurationError.
func resolveUpscale(opts job.Options) (upscaleParams, error) {
	var p upscaleParams

	famName, modelName := opts.Get(job.KeyFamily), opts.Get(job.KeyModel)
	switch {
	case famName != "":
		f, ok := LookupFamily(famName)
		if !ok {
			return p, &job.ConfigurationError{Key: job.KeyFamily, Value: famName, Reason: "unknown tool family"}
		}
		p.family = f
		if modelName == "" {
			p.model = f.DefaultModel()
		} else if m, ok := f.Model(modelName); ok {
			p.model = m
		} else {
			return p, &job.ConfigurationError{Key: job.KeyModel, Value: modelName, Reason: "not a " + f.Name + " model"}
		}
	case modelName != "":
		f, m, ok := familyOfModel(modelName)
		if !ok {
			return p, &job.ConfigurationError{Key: job.KeyModel, Value: modelName, Reason: "unknown model"}
		}
		p.family, p.model = f, m
	default:
		p.family = RealESRGAN
		p.model = RealESRGAN.DefaultModel()
	}

	p.scale = p.model.MaxScale()
	if s := opts.Get(job.KeyScale); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || !p.model.Supports(n) {
			return p, &job.ConfigurationError{
				Key:    job.KeyScale,
				Value:  s,
				Reason: fmt.Sprintf("%s supports scale %s", p.model.Name, joinInts(p.model.Scales)),
			}
		}
		p.scale = n
	}

	if s := opts.Get(job.KeyNoise); s != "" {
		if !p.family.Noise {
			return p, &job.ConfigurationError{Key: job.KeyNoise, Value: s, Reason: p.family.Name + " has no noise level"}
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < p.family.NoiseMin || n > p.family.NoiseMax {
			return p, &job.ConfigurationError{
				Key:    job.KeyNoise,
				Value:  s,
				Reason: fmt.Sprintf("must be between %d and %d", p.family.NoiseMin, p.family.NoiseMax),
			}
		}
		p.noise = n
	}

	if strings.EqualFold(opts.Get(job.KeyDevice), DeviceCPU) {
		if !p.family.CPU {
			return p, &job.ConfigurationError{Key: job.KeyDevice, Value: DeviceCPU, Reason: "CPU mode is not available for " + p.family.Name}
		}
		p.cpu = true
	}
	return p, nil
}

// args builds the tool arguments for one run.
func (p upscaleParams) args(toolsDir, in, out string, f codec.Format) tool.NCNNArgs {
	a := tool.NCNNArgs{
		Input:    in,
		Output:   out,
		Scale:    p.scale,
		ModelDir: p.family.ModelDir(toolsDir, p.model),
		Format:   f.ToolName(),
		GPU:      tool.GPUAuto,
		Threads:  tool.DefaultThreads(),
	}
	if p.family.Noise {
		a.Noise = p.noise
		a.UseNoise = true
	} else {
		a.ModelName = p.model.Name
	}
	if p.cpu {
		a.GPU = tool.GPUCPU
	}
	return a
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
