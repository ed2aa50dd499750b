package bench

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/blang/semver/v4"
)

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// versionRequired reports whether version satisfies requirement, e.g.
// (">=9.0.0", "13.2.0"). An empty requirement is always satisfied; a bare
// version requires equality. A leading "v" is tolerated on either side.
func versionRequired(requirement, version string) bool {
	if requirement == "" {
		return true
	}
	v, err := semver.Parse(strings.TrimPrefix(version, "v"))
	if err != nil {
		return false
	}
	expected, err := semver.ParseRange(strings.ReplaceAll(requirement, "v", ""))
	if err != nil {
		return false
	}
	return expected(v)
}

// parseToolVersion extracts the first version triple from a compiler's
// --version output, e.g. "nvcc: ... release 12.2, V12.2.140" -> "12.2.140".
func parseToolVersion(output string) (string, bool) {
	v := versionPattern.FindString(output)
	return v, v != ""
}

// ToolchainChecker reports whether the compiler a compiled backend needs is
// usable.
type ToolchainChecker interface {
	Check(ctx context.Context, compiler, requires string) error
}

// ToolchainProber checks that the compiler a compiled backend needs is
// installed and recent enough. Results are cached per (compiler, requirement)
// for the lifetime of one invocation.
type ToolchainProber struct {
	mu     sync.Mutex
	probed map[string]error
}

func NewToolchainProber() *ToolchainProber {
	return &ToolchainProber{probed: make(map[string]error)}
}

func (p *ToolchainProber) Check(ctx context.Context, compiler, requires string) error {
	key := compiler + "|" + requires

	p.mu.Lock()
	err, ok := p.probed[key]
	p.mu.Unlock()
	if ok {
		return err
	}

	err = p.probe(ctx, compiler, requires)

	p.mu.Lock()
	p.probed[key] = err
	p.mu.Unlock()
	return err
}

func (p *ToolchainProber) probe(ctx context.Context, compiler, requires string) error {
	if _, err := exec.LookPath(compiler); err != nil {
		return fmt.Errorf("missing required toolchain '%s'", compiler)
	}
	if requires == "" {
		return nil
	}

	out, err := exec.CommandContext(ctx, compiler, "--version").CombinedOutput()
	if err != nil {
		return fmt.Errorf("unable to query '%s --version': %w", compiler, err)
	}
	version, ok := parseToolVersion(string(out))
	if !ok {
		return fmt.Errorf("unable to parse the version of '%s'", compiler)
	}
	if !versionRequired(requires, version) {
		return fmt.Errorf("toolchain '%s' version %s does not satisfy '%s'", compiler, version, requires)
	}
	return nil
}
