package sequence

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/chazu/brepseq/pkg/errs"
	"gopkg.in/yaml.v3"
)

// Step is one entry of a script. Params is a pointer to the params struct
// of Op, for example *BoxParams for OpBox.
type Step struct {
	Name   string
	Op     Opcode
	Params any
}

// NewStep builds a step and checks that params fit op.
func NewStep(name string, op Opcode, params any) (Step, error) {
	s := Step{Name: name, Op: op, Params: params}
	if err := s.check(); err != nil {
		return Step{}, err
	}
	return s, nil
}

func (s Step) check() error {
	info, ok := ops[s.Op]
	if !ok {
		return fmt.Errorf("unknown opcode %v", s.Op)
	}
	want := reflect.TypeOf(info.params())
	if got := reflect.TypeOf(s.Params); got != want {
		return fmt.Errorf("%v takes %v, got %v", s.Op, want, got)
	}
	if v, ok := s.Params.(validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%v: %w", s.Op, err)
		}
	}
	return nil
}

type stepYAML struct {
	Name   string    `yaml:"name"`
	Op     Opcode    `yaml:"op"`
	Params yaml.Node `yaml:"params,omitempty"`
}

func (s Step) MarshalYAML() (any, error) {
	out := stepYAML{Name: s.Name, Op: s.Op}
	if s.Params != nil {
		if err := out.Params.Encode(s.Params); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Step) UnmarshalYAML(n *yaml.Node) error {
	var raw stepYAML
	if err := n.Decode(&raw); err != nil {
		return err
	}
	info, ok := ops[raw.Op]
	if !ok {
		return fmt.Errorf("line %d: step %q has no opcode", n.Line, raw.Name)
	}
	p := info.params()
	if raw.Params.Kind != 0 {
		if err := decodeStrict(&raw.Params, p); err != nil {
			return fmt.Errorf("line %d: params of %q: %w", n.Line, raw.Name, err)
		}
	}
	*s = Step{Name: raw.Name, Op: raw.Op, Params: p}
	return nil
}

// decodeStrict decodes n into v rejecting keys v has no field for.
// yaml.Node.Decode does not honour KnownFields.
func decodeStrict(n *yaml.Node, v any) error {
	data, err := yaml.Marshal(n)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

// ParamsFrom builds the params of op from a field map keyed like the YAML
// encoding, for front-ends that collect arguments by name.
func ParamsFrom(op Opcode, fields map[string]any) (any, error) {
	info, ok := ops[op]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %v", op)
	}
	p := info.params()
	if len(fields) == 0 {
		return p, nil
	}
	var n yaml.Node
	if err := n.Encode(fields); err != nil {
		return nil, err
	}
	if err := decodeStrict(&n, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Script is an ordered list of steps.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Len returns the number of steps.
func (sc *Script) Len() int { return len(sc.Steps) }

// Append adds a step. It returns the step's index.
func (sc *Script) Append(name string, op Opcode, params any) (int, error) {
	s, err := NewStep(name, op, params)
	if err != nil {
		return 0, errs.Construction("step %q: %v", name, err)
	}
	sc.Steps = append(sc.Steps, s)
	return len(sc.Steps) - 1, nil
}

// Index returns the index of the step called name.
func (sc *Script) Index(name string) (int, bool) {
	for i, s := range sc.Steps {
		if s.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Decode reads a YAML script.
func Decode(r io.Reader) (*Script, error) {
	var sc Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if err == io.EOF {
			return &sc, nil
		}
		return nil, errs.Serialization(err, "decode script")
	}
	return &sc, nil
}

// Encode writes sc as YAML.
func Encode(w io.Writer, sc *Script) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sc); err != nil {
		return errs.Serialization(err, "encode script")
	}
	return enc.Close()
}

// LoadFile reads a YAML script from path.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Serialization(err, "read %s", path)
	}
	return Decode(bytes.NewReader(data))
}

// Severity tells blocking findings from advisory ones.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding is one validation result. Index is -1 for script-level findings.
type Finding struct {
	Index    int
	Step     string
	Message  string
	Severity Severity
}

func (f Finding) Error() string {
	if f.Index < 0 {
		return fmt.Sprintf("[%s] %s", f.Severity, f.Message)
	}
	return fmt.Sprintf("[%s] step %d (%s): %s", f.Severity, f.Index, f.Step, f.Message)
}

// Validate checks a script without running it: names, opcodes and params
// of every step, and frame bracket nesting. A script may end inside a
// frame, which is reported as a warning.
func Validate(sc *Script) []Finding {
	var out []Finding
	seen := make(map[string]int)
	depth := 0
	for i, s := range sc.Steps {
		bad := func(format string, args ...any) {
			out = append(out, Finding{Index: i, Step: s.Name, Message: fmt.Sprintf(format, args...)})
		}
		if s.Name == "" {
			bad("step has no name")
		} else if j, dup := seen[s.Name]; dup {
			bad("name already used by step %d", j)
		} else {
			seen[s.Name] = i
		}
		if err := s.check(); err != nil {
			bad("%v", err)
		}
		switch {
		case s.Op.Opens():
			depth++
		case s.Op == OpFrameEnd:
			if depth == 0 {
				bad("FrameEnd without an open frame")
				continue
			}
			depth--
		}
	}
	if depth > 0 {
		out = append(out, Finding{Index: -1, Message: fmt.Sprintf("%d frame(s) left open", depth), Severity: SeverityWarning})
	}
	return out
}

// Errors returns the blocking findings.
func Errors(fs []Finding) []Finding {
	var out []Finding
	for _, f := range fs {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}
