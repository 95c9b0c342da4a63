// Package runner renders the self-contained Python script that installs a
// package into a throwaway virtualenv and executes it. The script is the
// product: `curl <host>/<package> | python3`.
package runner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
)

//go:embed templates/runner.py
var embeddedTemplate string

// Renderer turns the runner template into a per-package script. Rendered
// scripts are cached per (package, module) pair — the template only changes
// on deploy (or on file change in dev mode, which calls Reload).
type Renderer struct {
	srcPath string // non-empty in dev mode: template is re-read on Reload

	mu    sync.RWMutex
	tpl   string
	cache map[string]string
}

// New returns a Renderer backed by the embedded template.
func New() *Renderer {
	return &Renderer{
		tpl:   embeddedTemplate,
		cache: make(map[string]string),
	}
}

// NewFromFile returns a Renderer that reads the template from the filesystem.
// Used in dev mode together with the template watcher.
func NewFromFile(path string) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runner template: %w", err)
	}
	return &Renderer{
		srcPath: path,
		tpl:     string(data),
		cache:   make(map[string]string),
	}, nil
}

// Render returns the runner script for a package, optionally run as a
// specific module (`python -m <module>`). When module is empty the package
// name doubles as the module name, resolved inside the script itself.
func (r *Renderer) Render(pkg, module string) string {
	key := pkg + "\x00" + module

	r.mu.RLock()
	if script, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return script
	}
	tpl := r.tpl
	r.mu.RUnlock()

	script := strings.ReplaceAll(tpl, "main()", invocation(pkg, module))

	r.mu.Lock()
	r.cache[key] = script
	r.mu.Unlock()

	return script
}

// Reload re-reads the template from disk and clears the render cache.
// No-op for embedded renderers.
func (r *Renderer) Reload() error {
	if r.srcPath == "" {
		return nil
	}
	data, err := os.ReadFile(r.srcPath)
	if err != nil {
		return fmt.Errorf("reload runner template: %w", err)
	}

	r.mu.Lock()
	r.tpl = string(data)
	r.cache = make(map[string]string)
	r.mu.Unlock()

	return nil
}

// invocation builds the main(...) call spliced into the template in place of
// its bare main() call. Extra command-line arguments given to the script are
// forwarded via *argv[1:].
func invocation(pkg, module string) string {
	argv := []string{pkg}
	if module != "" {
		argv = append([]string{"-m", module}, argv...)
	}

	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = pyStr(a)
	}
	return "main([" + strings.Join(parts, ", ") + ", *argv[1:]])"
}

// pyStr formats s as a Python single-quoted string literal.
func pyStr(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
