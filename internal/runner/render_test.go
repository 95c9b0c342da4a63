package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderPackageInvocation(t *testing.T) {
	t.Parallel()
	r := New()

	script := r.Render("cowsay", "")
	want := "main(['cowsay', *argv[1:]])"
	if !strings.Contains(script, want) {
		t.Fatalf("script does not contain %q", want)
	}
	if strings.Contains(script, "main()") {
		t.Error("bare main() call left in rendered script")
	}
	// The template scaffolding must survive the splice
	if !strings.Contains(script, "def main(") {
		t.Error("main definition missing from rendered script")
	}
	if !strings.Contains(script, "temp_venv") {
		t.Error("temp_venv missing from rendered script")
	}
}

func TestRenderModuleInvocation(t *testing.T) {
	t.Parallel()
	r := New()

	script := r.Render("httpie", "httpie.cli")
	want := "main(['-m', 'httpie.cli', 'httpie', *argv[1:]])"
	if !strings.Contains(script, want) {
		t.Fatalf("script does not contain %q", want)
	}
}

func TestRenderCached(t *testing.T) {
	t.Parallel()
	r := New()

	a := r.Render("requests", "")
	b := r.Render("requests", "")
	if a != b {
		t.Error("same render inputs produced different scripts")
	}

	// Different module must not collide with the plain-package key
	c := r.Render("requests", "requests.help")
	if a == c {
		t.Error("module render returned the cached package render")
	}
}

func TestRendererFromFileReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runner.py")
	if err := os.WriteFile(path, []byte("# v1\nmain()\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	first := r.Render("pkg", "")
	if !strings.Contains(first, "# v1") {
		t.Fatalf("unexpected render: %q", first)
	}

	// File changes don't apply until Reload — the render cache holds
	if err := os.WriteFile(path, []byte("# v2\nmain()\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := r.Render("pkg", ""); got != first {
		t.Error("render changed without Reload")
	}

	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := r.Render("pkg", ""); !strings.Contains(got, "# v2") {
		t.Errorf("render after Reload = %q, want v2 template", got)
	}
}

func TestInvocationQuoting(t *testing.T) {
	t.Parallel()

	got := invocation("foo-bar", "")
	if got != "main(['foo-bar', *argv[1:]])" {
		t.Errorf("invocation = %q", got)
	}

	got = invocation("pkg", "a.b")
	if got != "main(['-m', 'a.b', 'pkg', *argv[1:]])" {
		t.Errorf("invocation with module = %q", got)
	}
}

func TestPyStr(t *testing.T) {
	t.Parallel()

	if got := pyStr("plain"); got != "'plain'" {
		t.Errorf("pyStr = %s", got)
	}
	if got := pyStr(`it's`); got != `'it\'s'` {
		t.Errorf("pyStr with quote = %s", got)
	}
	if got := pyStr(`a\b`); got != `'a\\b'` {
		t.Errorf("pyStr with backslash = %s", got)
	}
}
