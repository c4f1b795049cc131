package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
)

// Source discovers test cases from manifest files
type Source struct {
	Paths []string
}

// NewSource creates a Source over paths
func NewSource(paths ...string) *Source {
	return &Source{Paths: paths}
}

// Discover parses every manifest into an assembly
func (s *Source) Discover(ctx context.Context) ([]*framework.Assembly, error) {
	assemblies := make([]*framework.Assembly, 0, len(s.Paths))
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		asm, err := f.Assembly()
		if err != nil {
			return nil, err
		}
		assemblies = append(assemblies, asm)
	}
	return assemblies, nil
}

// Assembly converts the manifest into a framework assembly
func (f *File) Assembly() (*framework.Assembly, error) {
	abs, err := filepath.Abs(f.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", f.Path, err)
	}
	dir := filepath.Dir(abs)
	if f.WorkDir != "" {
		if filepath.IsAbs(f.WorkDir) {
			dir = f.WorkDir
		} else {
			dir = filepath.Join(dir, f.WorkDir)
		}
	}

	env := make(map[string]string)
	if f.EnvFile != "" {
		envPath := f.EnvFile
		if !filepath.IsAbs(envPath) {
			envPath = filepath.Join(filepath.Dir(abs), envPath)
		}
		vars, err := LoadDotEnv(envPath)
		if err != nil {
			return nil, fmt.Errorf("loading env for %s: %w", f.Path, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	for k, v := range f.Env {
		env[k] = v
	}

	asm := &framework.Assembly{
		ID:   framework.AssemblyID(abs),
		Name: f.Name,
		Path: abs,
	}
	for _, tt := range f.Tests {
		asm.Cases = append(asm.Cases, tt.testCase(abs, f.Namespace, dir, env))
	}
	return asm, nil
}

func (tt *Test) testCase(path, namespace, dir string, fileEnv map[string]string) *framework.TestCase {
	env := make(map[string]string, len(fileEnv)+len(tt.Env))
	for k, v := range fileEnv {
		env[k] = v
	}
	for k, v := range tt.Env {
		env[k] = v
	}

	tc := &framework.TestCase{
		ID:          framework.CaseID(path, tt.Class, tt.Method, ""),
		DisplayName: tt.Name,
		Namespace:   namespace,
		Class:       tt.Class,
		Method:      tt.Method,
		Traits:      tt.Traits,
		SourceFile:  path,
		SourceLine:  tt.Line,
		Explicit:    tt.Explicit,
		SkipReason:  tt.Skip,
		Timeout:     time.Duration(tt.Timeout),
		Collection:  tt.Collection,
		Body:        ShellBody(tt.Run, dir, env),
	}
	if tc.DisplayName == "" {
		tc.DisplayName = tc.FullName()
	}
	for _, row := range tt.Rows {
		tc.Rows = append(tc.Rows, framework.Row{Label: row.Label, Values: row.Values})
	}
	return tc
}
