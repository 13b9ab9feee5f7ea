package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.starlark.net/starlark"
)

// DefaultStarlarkTimeout is the default execution timeout for dynamic
// config.lua.sky files.
const DefaultStarlarkTimeout = 5 * time.Second

// ErrConfigureNotFound is returned when config.lua.sky doesn't define
// a configure() function.
var ErrConfigureNotFound = errors.New("config.lua.sky must define a configure() function")

// ErrConfigureReturnType is returned when configure() doesn't return a dict.
var ErrConfigureReturnType = errors.New("configure() must return a dict")

// LoadStarlarkConfig loads a configuration from a Starlark file. The
// file must define a configure() function that returns a dict; its
// execution is sandboxed (no filesystem or network builtins) and
// bounded by timeout.
func LoadStarlarkConfig(path string, timeout time.Duration) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	thread := &starlark.Thread{Name: path}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel("execution timeout")
		case <-done:
		}
	}()
	defer close(done)

	globals, err := starlark.ExecFile(thread, path, data, configPredeclared())
	if err != nil {
		return nil, fmt.Errorf("executing config %s: %w", path, err)
	}

	configureFn, ok := globals["configure"]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrConfigureNotFound)
	}

	fn, ok := configureFn.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("%s: configure must be a function, got %s", path, configureFn.Type())
	}

	result, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: calling configure(): %w", path, err)
	}

	dict, ok := result.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("%s: %w, got %s", path, ErrConfigureReturnType, result.Type())
	}

	return dictToConfig(dict)
}

// configPredeclared returns the predeclared values for config
// Starlark files: a sandboxed environment with no filesystem or
// network access.
func configPredeclared() starlark.StringDict {
	return starlark.StringDict{
		"getenv":    starlark.NewBuiltin("getenv", builtinGetenv),
		"host_os":   starlark.String(runtime.GOOS),
		"host_arch": starlark.String(runtime.GOARCH),
		"glob":      starlark.NewBuiltin("glob", builtinGlob),
	}
}

func builtinGetenv(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultVal starlark.String
	if err := starlark.UnpackArgs("getenv", args, kwargs, "name", &name, "default?", &defaultVal); err != nil {
		return nil, err
	}
	val := os.Getenv(name)
	if val == "" {
		return defaultVal, nil
	}
	return starlark.String(val), nil
}

// builtinGlob is an identity passthrough that validates its argument
// is a string; it exists so config.lua.sky files can write
// glob("**/*_spec.lua") and have it read naturally, without granting
// the sandbox any actual filesystem access (glob expansion itself
// happens later, in eligibility.Policy, against the real filesystem).
func builtinGlob(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pattern string
	if err := starlark.UnpackArgs("glob", args, kwargs, "pattern", &pattern); err != nil {
		return nil, err
	}
	return starlark.String(pattern), nil
}

func dictToConfig(d *starlark.Dict) (*Config, error) {
	cfg := DefaultConfig()

	if v, found, _ := d.Get(starlark.String("include")); found {
		list, err := stringList("include", v)
		if err != nil {
			return nil, err
		}
		cfg.Include = list
	}
	if v, found, _ := d.Get(starlark.String("exclude")); found {
		list, err := stringList("exclude", v)
		if err != nil {
			return nil, err
		}
		cfg.Exclude = list
	}
	if v, found, _ := d.Get(starlark.String("source_dirs")); found {
		list, err := stringList("source_dirs", v)
		if err != nil {
			return nil, err
		}
		cfg.SourceDirs = list
	}
	if v, found, _ := d.Get(starlark.String("track_all_executed")); found {
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("track_all_executed must be a bool, got %s", v.Type())
		}
		cfg.TrackAllExecuted = bool(b)
	}
	if v, found, _ := d.Get(starlark.String("structural_is_executable")); found {
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("structural_is_executable must be a bool, got %s", v.Type())
		}
		cfg.StructuralIsExecutable = bool(b)
	}
	if v, found, _ := d.Get(starlark.String("auto_fix_block_relationships")); found {
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("auto_fix_block_relationships must be a bool, got %s", v.Type())
		}
		cfg.AutoFixBlockRelationships = bool(b)
	}
	if v, found, _ := d.Get(starlark.String("instrumentation")); found {
		dict, ok := v.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("instrumentation must be a dict, got %s", v.Type())
		}
		if err := parseInstrumentationConfig(dict, &cfg.Instrumentation); err != nil {
			return nil, fmt.Errorf("parsing instrumentation config: %w", err)
		}
	}
	if v, found, _ := d.Get(starlark.String("analyzer")); found {
		dict, ok := v.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("analyzer must be a dict, got %s", v.Type())
		}
		if err := parseAnalyzerConfig(dict, &cfg.Analyzer); err != nil {
			return nil, fmt.Errorf("parsing analyzer config: %w", err)
		}
	}

	return cfg, nil
}

func parseInstrumentationConfig(d *starlark.Dict, cfg *InstrumentationConfig) error {
	if v, found, _ := d.Get(starlark.String("max_file_size")); found {
		i, ok := toInt(v)
		if !ok {
			return fmt.Errorf("max_file_size must be an int, got %s", v.Type())
		}
		cfg.MaxFileSize = i
	}
	if v, found, _ := d.Get(starlark.String("cache_enabled")); found {
		b, ok := v.(starlark.Bool)
		if !ok {
			return fmt.Errorf("cache_enabled must be a bool, got %s", v.Type())
		}
		cfg.CacheEnabled = bool(b)
	}
	if v, found, _ := d.Get(starlark.String("static_imports")); found {
		b, ok := v.(starlark.Bool)
		if !ok {
			return fmt.Errorf("static_imports must be a bool, got %s", v.Type())
		}
		cfg.StaticImports = bool(b)
	}
	if v, found, _ := d.Get(starlark.String("sourcemap_enabled")); found {
		b, ok := v.(starlark.Bool)
		if !ok {
			return fmt.Errorf("sourcemap_enabled must be a bool, got %s", v.Type())
		}
		cfg.SourcemapEnabled = bool(b)
	}
	return nil
}

func parseAnalyzerConfig(d *starlark.Dict, cfg *AnalyzerConfig) error {
	if v, found, _ := d.Get(starlark.String("node_budget")); found {
		i, ok := toInt(v)
		if !ok {
			return fmt.Errorf("node_budget must be an int, got %s", v.Type())
		}
		cfg.NodeBudget = int(i)
	}
	if v, found, _ := d.Get(starlark.String("time_budget_ms")); found {
		i, ok := toInt(v)
		if !ok {
			return fmt.Errorf("time_budget_ms must be an int, got %s", v.Type())
		}
		cfg.TimeBudgetMS = int(i)
	}
	return nil
}

func toInt(v starlark.Value) (int64, bool) {
	i, ok := v.(starlark.Int)
	if !ok {
		return 0, false
	}
	n, ok := i.Int64()
	return n, ok
}

func stringList(field string, v starlark.Value) ([]string, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%s must be a list, got %s", field, v.Type())
	}
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", field, i)
		}
		out = append(out, s)
	}
	return out, nil
}
