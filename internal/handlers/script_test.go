package handlers_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pypirun/pypirun/internal/testutil"
)

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestServeScriptPackage(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	resp, body := get(t, env.Server.URL+"/cowsay")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(body, "main(['cowsay', *argv[1:]])") {
		t.Error("script does not contain the package invocation")
	}
	if !strings.Contains(body, "#!/usr/bin/env python3") {
		t.Error("script missing shebang")
	}
}

func TestServeScriptModule(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	resp, body := get(t, env.Server.URL+"/httpie/httpie.cli")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "main(['-m', 'httpie.cli', 'httpie', *argv[1:]])") {
		t.Error("script does not contain the module invocation")
	}
}

func TestServeScriptCountsHits(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	get(t, env.Server.URL+"/cowsay")
	get(t, env.Server.URL+"/Cowsay") // normalizes to the same counter

	snap, err := env.App.Hits.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Total != 2 {
		t.Errorf("total = %d, want 2", snap.Total)
	}
	if len(snap.Packages) != 1 || snap.Packages[0].Package != "cowsay" {
		t.Errorf("packages = %+v, want single cowsay entry", snap.Packages)
	}
}

func TestAssetsShadowPackageNames(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	// favicon.ico is a valid package name syntactically, but the file wins
	resp, body := get(t, env.Server.URL+"/favicon.ico")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body != "icon-bytes" {
		t.Errorf("body = %q, want the asset", body)
	}

	// Nested assets never hit the script routes (three segments go to "/",
	// two segments are checked against the FS first)
	resp, body = get(t, env.Server.URL+"/_nuxt/app.js")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body != "console.log('app')" {
		t.Errorf("body = %q, want the asset", body)
	}
}

func TestInvalidNamesFallBackToSPA(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	for _, path := range []string{"/-leading", "/trailing.", "/pkg/not-a-module"} {
		resp, body := get(t, env.Server.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", path, resp.StatusCode)
		}
		if !strings.Contains(body, "spa fallback") {
			t.Errorf("%s: body = %q, want SPA fallback", path, body)
		}
	}
}

func TestFrontendRoot(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	resp, body := get(t, env.Server.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "index") {
		t.Errorf("body = %q, want index.html", body)
	}
}

func TestVerifyPackagesRejectsUnknown(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)
	env.App.VerifyPackages = true

	// Known package still renders
	resp, body := get(t, env.Server.URL+"/cowsay")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "main(['cowsay', *argv[1:]])") {
		t.Error("script missing invocation")
	}

	// Unknown package is rejected
	resp, _ = get(t, env.Server.URL+"/definitely-not-on-the-index")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	env := testutil.Setup(t)

	resp, body := get(t, env.Server.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}
