package bench

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Mode is the execution mode axis of the benchmark matrix.
type Mode string

const (
	ModeInterpreted Mode = "interpreted"
	ModeCompiled    Mode = "compiled"
)

// Modes lists the execution modes in report order.
var Modes = []Mode{ModeInterpreted, ModeCompiled}

// RuntimeKind is one legal (mode, backend) pair together with the commands
// needed to execute a benchmark program under it. The set of legal pairs is
// configuration, not user input: interpreted backends carry the runtime
// subcommand to run a program directly, compiled backends carry a codegen
// subcommand plus the compiler that turns its output into a binary.
type RuntimeKind struct {
	Mode    Mode
	Backend string

	RunArgs      []string
	GenArgs      []string
	SourceExt    string
	Compiler     string
	CompilerArgs []string
	Requires     string
}

func (k RuntimeKind) String() string {
	return fmt.Sprintf("%s/%s", k.Mode, k.Backend)
}

// RuntimeConfiguration is the yaml form of a single backend entry.
type RuntimeConfiguration struct {
	Backend      string   `yaml:"backend"`
	Run          []string `yaml:"run,omitempty"`
	Gen          []string `yaml:"gen,omitempty"`
	Ext          string   `yaml:"ext,omitempty"`
	Compiler     string   `yaml:"compiler,omitempty"`
	CompilerArgs []string `yaml:"compilerArgs,omitempty"`
	Requires     string   `yaml:"requires,omitempty"`
}

// BuildConfiguration describes how to turn a revision checkout into a runtime
// binary.
type BuildConfiguration struct {
	Command    []string `yaml:"command"`
	BinaryPath string   `yaml:"binaryPath"`
}

// Configuration is the harness configuration document. Entry order within a
// mode is the row order of the rendered report.
type Configuration struct {
	Build       BuildConfiguration     `yaml:"build"`
	Interpreted []RuntimeConfiguration `yaml:"interpreted"`
	Compiled    []RuntimeConfiguration `yaml:"compiled"`
}

// DefaultConfiguration mirrors the runtime matrix of the hvm tool: three
// interpreted backends and two compiled ones, built with cargo.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		Build: BuildConfiguration{
			Command:    []string{"cargo", "build", "--release"},
			BinaryPath: "target/release/hvm",
		},
		Interpreted: []RuntimeConfiguration{
			{Backend: "c", Run: []string{"run-c"}},
			{Backend: "cuda", Run: []string{"run-cu"}},
			{Backend: "rust", Run: []string{"run"}},
		},
		Compiled: []RuntimeConfiguration{
			{Backend: "c", Gen: []string{"gen-c"}, Ext: ".c", Compiler: "gcc", CompilerArgs: []string{"-lm", "-O2"}},
			{Backend: "cuda", Gen: []string{"gen-cu"}, Ext: ".cu", Compiler: "nvcc", CompilerArgs: []string{"-w", "-O3"}},
		},
	}
}

func (c *Configuration) applyDefaults(d *Configuration) *Configuration {
	if len(c.Build.Command) == 0 {
		c.Build.Command = d.Build.Command
	}
	if c.Build.BinaryPath == "" {
		c.Build.BinaryPath = d.Build.BinaryPath
	}
	if c.Interpreted == nil {
		c.Interpreted = d.Interpreted
	}
	if c.Compiled == nil {
		c.Compiled = d.Compiled
	}
	return c
}

func (c *Configuration) validate() error {
	for _, r := range c.Interpreted {
		if r.Backend == "" {
			return fmt.Errorf("interpreted entry without a backend name")
		}
		if len(r.Run) == 0 {
			return fmt.Errorf("interpreted backend '%s' has no run command", r.Backend)
		}
	}
	for _, r := range c.Compiled {
		if r.Backend == "" {
			return fmt.Errorf("compiled entry without a backend name")
		}
		if len(r.Gen) == 0 || r.Compiler == "" {
			return fmt.Errorf("compiled backend '%s' needs both a gen command and a compiler", r.Backend)
		}
	}
	return nil
}

// Kinds flattens the configuration into the ordered list of legal runtime
// kinds: interpreted backends first, then compiled, each in config order.
func (c *Configuration) Kinds() []RuntimeKind {
	var kinds []RuntimeKind
	for _, r := range c.Interpreted {
		kinds = append(kinds, RuntimeKind{
			Mode:    ModeInterpreted,
			Backend: r.Backend,
			RunArgs: r.Run,
		})
	}
	for _, r := range c.Compiled {
		ext := r.Ext
		if ext == "" {
			ext = ".c"
		}
		kinds = append(kinds, RuntimeKind{
			Mode:         ModeCompiled,
			Backend:      r.Backend,
			GenArgs:      r.Gen,
			SourceExt:    ext,
			Compiler:     r.Compiler,
			CompilerArgs: r.CompilerArgs,
			Requires:     r.Requires,
		})
	}
	return kinds
}

// LoadConfiguration reads a yaml configuration file and layers it over the
// defaults. An empty path returns the defaults unchanged.
func LoadConfiguration(path string) (*Configuration, error) {
	c := &Configuration{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read the configuration file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("unable to parse the configuration file: %w", err)
		}
	}
	c.applyDefaults(DefaultConfiguration())
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
