// Package toolchain maps language tags onto a closed set of build and run
// strategies. Adding a language means adding a Language value to the registry.
package toolchain

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/dontdude/gograde/internal/domain"
)

// Config names the host binaries used for each strategy. Flag fields are
// shell-style strings, tokenised with shlex.
type Config struct {
	CXX      string
	CXXFlags string
	CC       string
	CFlags   string
	Javac    string
	Java     string
	Python   string
	Node     string
}

// DefaultConfig returns binaries resolved from PATH.
func DefaultConfig() Config {
	return Config{
		CXX:    "g++",
		CC:     "gcc",
		Javac:  "javac",
		Java:   "java",
		Python: "python3",
		Node:   "node",
	}
}

// Language is one resolved strategy. Every path in its argv is relative to
// the job workspace, so the same Language works on the host and in a container.
type Language struct {
	Name       string
	Kind       domain.Kind
	SourceFile string
	// Artifact is the build output inside the workspace, empty for scripts.
	Artifact    string
	CompileArgv []string
	RunArgv     []string
}

// Registry resolves raw language tags.
type Registry struct {
	langs map[string]Language
}

// NewRegistry builds the registry. It fails if a flag string cannot be tokenised.
func NewRegistry(cfg Config) (*Registry, error) {
	cxxFlags, err := shlex.Split(cfg.CXXFlags)
	if err != nil {
		return nil, fmt.Errorf("parse CXXFLAGS: %w", err)
	}
	cFlags, err := shlex.Split(cfg.CFlags)
	if err != nil {
		return nil, fmt.Errorf("parse CFLAGS: %w", err)
	}

	cpp := native("cpp", "main.cpp", cfg.CXX, cxxFlags)
	c := native("c", "main.c", cfg.CC, cFlags)
	java := Language{
		Name:        "java",
		Kind:        domain.KindJVM,
		SourceFile:  "Main.java",
		Artifact:    "classes",
		CompileArgv: []string{cfg.Javac, "-encoding", "UTF-8", "-d", "classes", "Main.java"},
		RunArgv:     []string{cfg.Java, "-cp", "classes", "Main"},
	}
	python := script("python", "main.py", cfg.Python)
	node := script("javascript", "main.js", cfg.Node)

	r := &Registry{langs: make(map[string]Language)}
	r.register(cpp, "cpp", "c++", "g++", "cc")
	r.register(c, "c", "gcc")
	r.register(java, "java")
	r.register(python, "python", "python3", "py")
	r.register(node, "javascript", "js", "node", "nodejs")
	return r, nil
}

func (r *Registry) register(lang Language, tags ...string) {
	for _, tag := range tags {
		r.langs[tag] = lang
	}
}

// Resolve maps a tag to its Language. Tags are case-insensitive; an empty tag
// means C++. Unknown tags wrap domain.ErrUnsupportedLanguage.
func (r *Registry) Resolve(tag string) (Language, error) {
	key := strings.ToLower(strings.TrimSpace(tag))
	if key == "" {
		key = "cpp"
	}
	lang, ok := r.langs[key]
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, tag)
	}
	return lang, nil
}

func native(name, source, compiler string, flags []string) Language {
	argv := []string{compiler}
	argv = append(argv, flags...)
	argv = append(argv, source, "-o", "main")
	return Language{
		Name:        name,
		Kind:        domain.KindNative,
		SourceFile:  source,
		Artifact:    "main",
		CompileArgv: argv,
		RunArgv:     []string{"./main"},
	}
}

func script(name, source, interpreter string) Language {
	return Language{
		Name:       name,
		Kind:       domain.KindScript,
		SourceFile: source,
		RunArgv:    []string{interpreter, source},
	}
}
