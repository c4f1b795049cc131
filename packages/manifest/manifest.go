package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is a parsed manifest
type File struct {
	Path      string            `yaml:"-"`
	Name      string            `yaml:"name"`
	Namespace string            `yaml:"namespace"`
	WorkDir   string            `yaml:"workdir"`
	EnvFile   string            `yaml:"envFile"`
	Env       map[string]string `yaml:"env"`
	Tests     []*Test           `yaml:"-"`
}

// Test declares one test case whose body is a shell command
type Test struct {
	Class      string            `yaml:"class"`
	Method     string            `yaml:"method"`
	Name       string            `yaml:"name"`
	Run        string            `yaml:"run"`
	Traits     Traits            `yaml:"traits"`
	Skip       string            `yaml:"skip"`
	Explicit   bool              `yaml:"explicit"`
	Timeout    Duration          `yaml:"timeout"`
	Collection string            `yaml:"collection"`
	Env        map[string]string `yaml:"env"`
	Rows       []Row             `yaml:"rows"`

	Line int `yaml:"-"`
}

// Row is one data row of a theory
type Row struct {
	Label  string            `yaml:"label"`
	Values map[string]string `yaml:"values"`
}

// Traits accepts both `name: value` and `name: [a, b]`
type Traits map[string][]string

func (t *Traits) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: traits must be a mapping", node.Line)
	}
	out := make(Traits, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			out[name] = append(out[name], val.Value)
		case yaml.SequenceNode:
			for _, item := range val.Content {
				out[name] = append(out[name], item.Value)
			}
		default:
			return fmt.Errorf("line %d: trait %q must be a string or a list", val.Line, name)
		}
	}
	*t = out
	return nil
}

// Duration accepts Go duration strings ("5s") or a number of milliseconds
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if ms, err := strconv.Atoi(node.Value); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid timeout %q", node.Line, node.Value)
	}
	*d = Duration(v)
	return nil
}

// ParseError points at the offending line of a manifest
type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ParseFile reads and parses the manifest at path
func ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(content, path)
}

// Parse parses manifest content; filename is used for error positions and
// default names
func Parse(content []byte, filename string) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	if len(doc.Content) == 0 {
		return nil, &ParseError{File: filename, Line: 1, Message: "empty manifest"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{File: filename, Line: root.Line, Message: "manifest must be a mapping"}
	}

	f := &File{Path: filename}
	if err := root.Decode(f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	testsNode := lookup(root, "tests")
	if testsNode == nil {
		return nil, &ParseError{File: filename, Line: root.Line, Message: "manifest has no tests"}
	}
	if testsNode.Kind != yaml.SequenceNode {
		return nil, &ParseError{File: filename, Line: testsNode.Line, Message: "tests must be a list"}
	}

	seen := make(map[string]int)
	for _, node := range testsNode.Content {
		var tt Test
		if err := node.Decode(&tt); err != nil {
			return nil, &ParseError{File: filename, Line: node.Line, Message: err.Error()}
		}
		tt.Line = node.Line

		if tt.Method == "" {
			return nil, &ParseError{File: filename, Line: node.Line, Message: "test is missing 'method'"}
		}
		if strings.TrimSpace(tt.Run) == "" {
			return nil, &ParseError{File: filename, Line: node.Line, Message: fmt.Sprintf("test %q is missing 'run'", tt.Method)}
		}
		if tt.Class == "" && f.Namespace != "" {
			tt.Class = f.Namespace + "." + f.Name
		}

		key := strings.ToLower(tt.Class + "." + tt.Method)
		if prev, ok := seen[key]; ok {
			return nil, &ParseError{
				File:    filename,
				Line:    node.Line,
				Message: fmt.Sprintf("duplicate test %s.%s (first declared on line %d)", tt.Class, tt.Method, prev),
			}
		}
		seen[key] = node.Line

		f.Tests = append(f.Tests, &tt)
	}

	return f, nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// IsManifest reports whether path looks like a manifest file
func IsManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
