// Package config implements the compilation configuration surface of
// SPEC_FULL.md §6 (A2): the CompilationOptions the caller passes into
// Compile, the YAML file the CLI layers underneath explicit flags
// (grounded on cmd/mantle/config.go's pattern), and the
// ETHOSN_SUPPORT_LIBRARY_DEBUG_STRIPE_CONFIG override grammar.
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethosn/cascadec/internal/planner"
	"github.com/ethosn/cascadec/pkg/npu"
	"gopkg.in/yaml.v3"
)

// DebugInfo controls where and how much the compiler dumps about its
// own decisions.
type DebugInfo struct {
	DumpDir     string `yaml:"dump_dir"`
	DetailLevel int    `yaml:"detail_level"`
}

// CompilationOptions is the top-level knob set §6 exposes to callers:
// which stripe splits and block configs are enabled, whether Winograd
// is disabled, and debug dump settings.
type CompilationOptions struct {
	StrategiesEnabled   StripeConfig   `yaml:"-"`
	BlockConfigsEnabled BlockConfigSet `yaml:"-"`
	DisableWinograd     bool           `yaml:"disable_winograd"`
	Debug               DebugInfo      `yaml:"debug_info"`
}

// DefaultOptions enables every split kind and block config, matching
// the compiler's behaviour with no restrictions applied.
func DefaultOptions() CompilationOptions {
	return CompilationOptions{
		StrategiesEnabled:   AllStripeConfig(),
		BlockConfigsEnabled: AllBlockConfigs(),
	}
}

// ToRestriction converts these options into the planner.Restriction the
// combiner's section search applies (C5/C6, respecting A2). planner
// cannot import this package back (StripeConfig/BlockConfigSet already
// import planner's SplitKind/BlockConfig), so the conversion lives here
// rather than as a planner constructor.
func (o CompilationOptions) ToRestriction() planner.Restriction {
	return planner.Restriction{
		Splits:          o.StrategiesEnabled.Splits,
		Blocks:          map[planner.BlockConfig]bool(o.BlockConfigsEnabled),
		AllowBeginning:  o.StrategiesEnabled.PlanTypeBeginning,
		AllowMiddle:     o.StrategiesEnabled.PlanTypeMiddle,
		AllowEnd:        o.StrategiesEnabled.PlanTypeEnd,
		AllowLonely:     o.StrategiesEnabled.PlanTypeLonely,
		DisableWinograd: o.DisableWinograd,
	}
}

// StripeConfig is a bitset over planner.SplitKind, one bit per split
// strategy, plus the plan-type restrictions of the debug grammar
// (`PlanTypes.{beginning|middle|end|lonely}`) and the twelve
// multiplier-range fields. A zero value has every bit clear; use
// AllStripeConfig for the "everything enabled" default.
type StripeConfig struct {
	Splits map[planner.SplitKind]bool

	PlanTypeBeginning bool
	PlanTypeMiddle    bool
	PlanTypeEnd       bool
	PlanTypeLonely    bool

	BlockWidthMultiplierMin  int
	BlockWidthMultiplierMax  int
	BlockHeightMultiplierMin int
	BlockHeightMultiplierMax int
	IfmWidthMultiplierMin    int
	IfmWidthMultiplierMax    int
	IfmHeightMultiplierMin   int
	IfmHeightMultiplierMax   int
	OfmWidthMultiplierMin    int
	OfmWidthMultiplierMax    int
	OfmHeightMultiplierMin   int
	OfmHeightMultiplierMax   int
}

// AllStripeConfig returns a StripeConfig with every split kind and
// every plan type enabled, and multiplier ranges wide enough to never
// constrain a plan.
func AllStripeConfig() StripeConfig {
	splits := make(map[planner.SplitKind]bool, len(planner.AllSplits))
	for _, s := range planner.AllSplits {
		splits[s] = true
	}
	return StripeConfig{
		Splits:                   splits,
		PlanTypeBeginning:        true,
		PlanTypeMiddle:           true,
		PlanTypeEnd:              true,
		PlanTypeLonely:           true,
		BlockWidthMultiplierMax:  1 << 30,
		BlockHeightMultiplierMax: 1 << 30,
		IfmWidthMultiplierMax:    1 << 30,
		IfmHeightMultiplierMax:   1 << 30,
		OfmWidthMultiplierMax:    1 << 30,
		OfmHeightMultiplierMax:   1 << 30,
	}
}

// DisableAll clears every split and plan-type bit, the effect of the
// grammar's bare `DisableAll` directive.
func (s *StripeConfig) DisableAll() {
	for k := range s.Splits {
		s.Splits[k] = false
	}
	s.PlanTypeBeginning, s.PlanTypeMiddle, s.PlanTypeEnd, s.PlanTypeLonely = false, false, false, false
}

// DisableAllSplits clears every split bit, leaving plan types and
// multiplier ranges untouched.
func (s *StripeConfig) DisableAllSplits() {
	for k := range s.Splits {
		s.Splits[k] = false
	}
}

// BlockConfigSet is a bitset over planner.BlockConfig values.
type BlockConfigSet map[planner.BlockConfig]bool

// AllBlockConfigs enables every block config in planner.BlockConfigs.
func AllBlockConfigs() BlockConfigSet {
	set := make(BlockConfigSet, len(planner.BlockConfigs))
	for _, b := range planner.BlockConfigs {
		set[b] = true
	}
	return set
}

// DisableAllBlockConfigs clears the set, the effect of the grammar's
// `DisableAllBlockConfigs` directive.
func (b BlockConfigSet) DisableAllBlockConfigs() {
	for k := range b {
		b[k] = false
	}
}

// fileConfig mirrors the on-disk YAML shape: a compiler config file
// layers CompilationOptions defaults the CLI applies unless the
// corresponding flag was set explicitly, exactly as
// cmd/mantle/config.go layers sampling defaults under CLI flags.
type fileConfig struct {
	DisableWinograd bool   `yaml:"disable_winograd"`
	DumpDir         string `yaml:"dump_dir"`
	DetailLevel     int    `yaml:"detail_level"`
	Capability      string `yaml:"capability"`
}

// LoadYAML reads a compiler config file, returning DefaultOptions()
// with the file's settings applied, plus the file's capability name. If
// the file does not exist it returns DefaultOptions() and an empty
// capability name (no error), matching LoadConfig's "absent file is not
// an error" convention.
func LoadYAML(path string) (opts CompilationOptions, capability string, err error) {
	opts = DefaultOptions()
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return opts, "", nil
		}
		return opts, "", readErr
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return opts, "", &npu.ConfigParseError{File: path, Line: 0, Message: err.Error()}
	}

	opts.DisableWinograd = fc.DisableWinograd
	opts.Debug.DumpDir = fc.DumpDir
	opts.Debug.DetailLevel = fc.DetailLevel
	return opts, fc.Capability, nil
}

// splitNames maps the grammar's `Splits.<name>` identifiers to
// planner.SplitKind, per §6's legal-names list.
var splitNames = map[string]planner.SplitKind{
	"none":                             planner.SplitNone,
	"widthOnly":                        planner.SplitWidthOnly,
	"mceAndPleOutputHeight":            planner.SplitMceAndPleOutputHeight,
	"mceOutputHeightOnly":              planner.SplitMceOutputHeightOnly,
	"widthHeight":                      planner.SplitWidthHeight,
	"widthHeightOutputDepth":           planner.SplitWidthHeightOutputDepth,
	"widthHeightOutputDepthInputDepth": planner.SplitWidthHeightOutputDepthInputDepth,
	"outputDepthInputDepth":            planner.SplitOutputDepthInputDepth,
	"mceOutputDepthOnly":               planner.SplitMceOutputDepthOnly,
	"mceAndPleOutputDepth":             planner.SplitMceAndPleOutputDepth,
	"inputDepthOnly":                   planner.SplitInputDepthOnly,
}

var blockConfigLine = regexp.MustCompile(`^BlockConfig\((\d+),\s*(\d+)\)$`)

// multiplierFields maps the grammar's `{Block|Ifm|Ofm}{Width|Height}
// Multiplier.{Min|Max}` names to a setter on StripeConfig.
var multiplierFields = map[string]func(*StripeConfig, int){
	"BlockWidthMultiplier.Min":  func(s *StripeConfig, v int) { s.BlockWidthMultiplierMin = v },
	"BlockWidthMultiplier.Max":  func(s *StripeConfig, v int) { s.BlockWidthMultiplierMax = v },
	"BlockHeightMultiplier.Min": func(s *StripeConfig, v int) { s.BlockHeightMultiplierMin = v },
	"BlockHeightMultiplier.Max": func(s *StripeConfig, v int) { s.BlockHeightMultiplierMax = v },
	"IfmWidthMultiplier.Min":    func(s *StripeConfig, v int) { s.IfmWidthMultiplierMin = v },
	"IfmWidthMultiplier.Max":    func(s *StripeConfig, v int) { s.IfmWidthMultiplierMax = v },
	"IfmHeightMultiplier.Min":   func(s *StripeConfig, v int) { s.IfmHeightMultiplierMin = v },
	"IfmHeightMultiplier.Max":   func(s *StripeConfig, v int) { s.IfmHeightMultiplierMax = v },
	"OfmWidthMultiplier.Min":    func(s *StripeConfig, v int) { s.OfmWidthMultiplierMin = v },
	"OfmWidthMultiplier.Max":    func(s *StripeConfig, v int) { s.OfmWidthMultiplierMax = v },
	"OfmHeightMultiplier.Min":   func(s *StripeConfig, v int) { s.OfmHeightMultiplierMin = v },
	"OfmHeightMultiplier.Max":   func(s *StripeConfig, v int) { s.OfmHeightMultiplierMax = v },
}

// planTypeFields maps `PlanTypes.<name>` to a setter.
var planTypeFields = map[string]func(*StripeConfig, bool){
	"beginning": func(s *StripeConfig, v bool) { s.PlanTypeBeginning = v },
	"middle":    func(s *StripeConfig, v bool) { s.PlanTypeMiddle = v },
	"end":       func(s *StripeConfig, v bool) { s.PlanTypeEnd = v },
	"lonely":    func(s *StripeConfig, v bool) { s.PlanTypeLonely = v },
}

// StripeConfigOverride maps a part-name regex to the StripeConfig and
// BlockConfigSet that should replace the defaults for any part whose
// name matches, as loaded from an
// ETHOSN_SUPPORT_LIBRARY_DEBUG_STRIPE_CONFIG file.
type StripeConfigOverride struct {
	Pattern      *regexp.Regexp
	Config       StripeConfig
	BlockConfigs BlockConfigSet
}

// ParseStripeConfigOverride parses the debug stripe-config grammar of
// §6: sections introduced by `<regex>:` whose body is `Name=Value` or
// a bare `DisableAll`/`DisableAllSplits`/`DisableAllBlockConfigs`
// directive, one per line, until the next section header or EOF.
// Returns npu.ConfigParseError, naming file and line, on any malformed
// input — unknown name, malformed value, or an unparseable regex.
func ParseStripeConfigOverride(path string) ([]StripeConfigOverride, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &npu.ConfigParseError{File: path, Line: 0, Message: err.Error()}
	}
	defer f.Close()

	var overrides []StripeConfigOverride
	var current *StripeConfigOverride

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, ":") {
			pat := strings.TrimSuffix(line, ":")
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, &npu.ConfigParseError{File: path, Line: lineNum, Message: fmt.Sprintf("invalid regex %q: %v", pat, err)}
			}
			overrides = append(overrides, StripeConfigOverride{
				Pattern:      re,
				Config:       AllStripeConfig(),
				BlockConfigs: AllBlockConfigs(),
			})
			current = &overrides[len(overrides)-1]
			continue
		}

		if current == nil {
			return nil, &npu.ConfigParseError{File: path, Line: lineNum, Message: "directive precedes any section header"}
		}

		if err := applyDirective(current, line); err != nil {
			return nil, &npu.ConfigParseError{File: path, Line: lineNum, Message: err.Error()}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &npu.ConfigParseError{File: path, Line: lineNum, Message: err.Error()}
	}
	return overrides, nil
}

func applyDirective(current *StripeConfigOverride, line string) error {
	switch line {
	case "DisableAll":
		current.Config.DisableAll()
		current.BlockConfigs.DisableAllBlockConfigs()
		return nil
	case "DisableAllSplits":
		current.Config.DisableAllSplits()
		return nil
	case "DisableAllBlockConfigs":
		current.BlockConfigs.DisableAllBlockConfigs()
		return nil
	}

	if m := blockConfigLine.FindStringSubmatch(line); m != nil {
		// BlockConfig(w,h) enables one specific block config; the grammar
		// gives no explicit boolean, so its presence is the enable.
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		current.BlockConfigs[planner.BlockConfig{W: w, H: h}] = true
		return nil
	}

	name, value, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("malformed directive %q: expected Name=Value", line)
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)

	if strings.HasPrefix(name, "Splits.") {
		splitName := strings.TrimPrefix(name, "Splits.")
		kind, ok := splitNames[splitName]
		if !ok {
			return fmt.Errorf("unknown split name %q", splitName)
		}
		enabled, err := parseBool(value)
		if err != nil {
			return err
		}
		current.Config.Splits[kind] = enabled
		return nil
	}

	if strings.HasPrefix(name, "PlanTypes.") {
		planName := strings.TrimPrefix(name, "PlanTypes.")
		setter, ok := planTypeFields[planName]
		if !ok {
			return fmt.Errorf("unknown plan type %q", planName)
		}
		enabled, err := parseBool(value)
		if err != nil {
			return err
		}
		setter(&current.Config, enabled)
		return nil
	}

	if setter, ok := multiplierFields[name]; ok {
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("malformed number %q for %q", value, name)
		}
		setter(&current.Config, int(n))
		return nil
	}

	return fmt.Errorf("unknown directive name %q", name)
}

func parseBool(value string) (bool, error) {
	switch value {
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		return false, fmt.Errorf("malformed boolean %q: expected True or False", value)
	}
}
