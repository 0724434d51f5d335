package job

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/backmassage/pixmaster/internal/codec"
)

// Key names one transform setting.
type Key string

const (
	KeyQuality     Key = "quality"
	KeyCompression Key = "compression"
	KeyDPI         Key = "dpi"
	KeyUpscale     Key = "upscale"
	KeyScale       Key = "scale"
	KeyNoise       Key = "noise"
	KeyModel       Key = "model"
	KeyFamily      Key = "family"
	KeyOrientation Key = "orientation"
	KeySpacing     Key = "spacing"
	KeyDevice      Key = "device"
)

// Options are the batch-wide settings shared by every item.
type Options struct {
	OutputDir    string
	Format       codec.Format
	Settings     map[Key]string
	SkipExisting bool

	// TempDir is the run's scratch directory. The runner sets it; transforms
	// put intermediates there.
	TempDir string
}

// Get returns the raw setting for k ("" when unset).
func (o Options) Get(k Key) string { return o.Settings[k] }

// Int returns the setting for k parsed as an integer, 0 when unset or
// malformed. Use after [Schema.Apply] has validated the value.
func (o Options) Int(k Key) int {
	n, _ := strconv.Atoi(strings.TrimSpace(o.Settings[k]))
	return n
}

// Bool reports whether k is set to on/true/yes/1.
func (o Options) Bool(k Key) bool {
	switch strings.ToLower(strings.TrimSpace(o.Settings[k])) {
	case "on", "true", "yes", "1":
		return true
	}
	return false
}

// With returns a copy of o with k set to v.
func (o Options) With(k Key, v string) Options {
	settings := make(map[Key]string, len(o.Settings)+1)
	for key, val := range o.Settings {
		settings[key] = val
	}
	settings[k] = v
	o.Settings = settings
	return o
}

// ConfigurationError is a start-time rejection of the batch options.
type ConfigurationError struct {
	Key    Key
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Key == "":
		return "invalid configuration: " + e.Reason
	case e.Value == "":
		return fmt.Sprintf("invalid option %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("invalid option %s=%q: %s", e.Key, e.Value, e.Reason)
}

// Configf builds a ConfigurationError not tied to a single key.
func Configf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// Rule constrains one setting: either a closed choice list or an integer range.
type Rule struct {
	Default string
	Choices []string

	Numeric  bool
	Min, Max int
}

func (r Rule) check(k Key, v string) (string, error) {
	v = strings.TrimSpace(v)
	if r.Numeric {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", &ConfigurationError{Key: k, Value: v, Reason: "not an integer"}
		}
		if n < r.Min || n > r.Max {
			return "", &ConfigurationError{Key: k, Value: v, Reason: fmt.Sprintf("must be between %d and %d", r.Min, r.Max)}
		}
		return strconv.Itoa(n), nil
	}
	for _, c := range r.Choices {
		if strings.EqualFold(c, v) {
			return c, nil
		}
	}
	return "", &ConfigurationError{Key: k, Value: v, Reason: "must be one of " + strings.Join(r.Choices, ", ")}
}

// Schema is the set of settings a transform recognises.
type Schema map[Key]Rule

// Apply validates o.Settings against s and returns a copy with defaults
// filled in and choice values in canonical case. Unknown keys are rejected.
func (s Schema) Apply(o Options) (Options, error) {
	keys := make([]string, 0, len(o.Settings))
	for k := range o.Settings {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	out := make(map[Key]string, len(s))
	for _, name := range keys {
		k := Key(name)
		rule, ok := s[k]
		if !ok {
			return o, &ConfigurationError{Key: k, Value: o.Settings[k], Reason: "not recognised by this transform"}
		}
		v, err := rule.check(k, o.Settings[k])
		if err != nil {
			return o, err
		}
		out[k] = v
	}
	for k, rule := range s {
		if _, ok := out[k]; !ok && rule.Default != "" {
			out[k] = rule.Default
		}
	}
	o.Settings = out
	return o, nil
}

// Keys returns the schema's keys in sorted order.
func (s Schema) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
