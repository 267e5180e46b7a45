package link

import "fmt"

// Strategy selects the startup-object sequence and dependency style.
type Strategy int

const (
	// StrategyDynamicPIE produces a position-independent executable
	// resolved by the system dynamic loader at startup.
	StrategyDynamicPIE Strategy = iota
	// StrategyStatic produces a self-contained executable with no
	// dynamic interpreter. External dependencies must be supplied as
	// object files; -l names cannot resolve without a loader.
	StrategyStatic
)

func (s Strategy) String() string {
	switch s {
	case StrategyDynamicPIE:
		return "dynamic-pie"
	case StrategyStatic:
		return "static"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps the CLI spelling to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "dynamic-pie", "dynamic", "pie":
		return StrategyDynamicPIE, nil
	case "static":
		return StrategyStatic, nil
	default:
		return 0, fmt.Errorf("unknown link strategy %q (supported: dynamic-pie, static)", s)
	}
}

// Plan describes one link invocation. It is constructed per call and
// not persisted.
type Plan struct {
	// Name identifies the artifact; temp file names derive from it so
	// concurrent sessions sharing a temp directory do not collide.
	Name string
	// ObjectPath is the compiled relocatable object.
	ObjectPath string
	// ExtraSearchPath, when set, is appended to the -L list after the
	// standard directories and before the object.
	ExtraSearchPath string
	// ExtraLibrary, when set, is linked by -l name after the object.
	// Dynamic-PIE only.
	ExtraLibrary string
	// ExtraObjects are additional object files placed after the user
	// object. The static strategy uses these instead of ExtraLibrary.
	ExtraObjects []string
	// OutputPath is where the executable is written.
	OutputPath string
	Strategy   Strategy
}

func (p *Plan) validate() error {
	if p.ObjectPath == "" {
		return fmt.Errorf("link plan: missing object path")
	}
	if p.OutputPath == "" {
		return fmt.Errorf("link plan: missing output path")
	}
	if p.Strategy == StrategyStatic && p.ExtraLibrary != "" {
		return fmt.Errorf("link plan: -l libraries cannot be resolved in a static link; supply %q as an object file", p.ExtraLibrary)
	}
	return nil
}
