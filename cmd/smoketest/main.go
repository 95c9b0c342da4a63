// Command smoketest renders a runner script and executes it for real — in a
// disposable Python container by default, or locally under a pty with
// -local. Used as a release check: if `smoketest -package cowsay` fails,
// the scripts we serve are broken.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pypirun/pypirun/internal/runner"
	"github.com/pypirun/pypirun/internal/sandbox"
)

func main() {
	var (
		pkg     = flag.String("package", "", "Package to install and run (required)")
		module  = flag.String("module", "", "Module passed to python -m (defaults to the package name)")
		img     = flag.String("image", "python:3.12-slim", "Image for the container run")
		local   = flag.Bool("local", false, "Run with the host python3 under a pty instead of Docker")
		timeout = flag.Duration("timeout", 10*time.Minute, "Overall timeout")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *pkg == "" {
		slog.Error("missing -package")
		os.Exit(2)
	}
	if !runner.ValidPackageName(*pkg) {
		slog.Error("invalid package name", "package", *pkg)
		os.Exit(2)
	}
	if *module != "" && !runner.ValidModuleName(*module) {
		slog.Error("invalid module name", "module", *module)
		os.Exit(2)
	}

	script := runner.New().Render(*pkg, *module)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *local {
		slog.Info("running locally under pty", "package", *pkg)
		if err := sandbox.RunLocal(ctx, script, os.Stdout); err != nil {
			slog.Error("smoketest failed", "err", err)
			os.Exit(1)
		}
		slog.Info("smoketest passed")
		return
	}

	slog.Info("running in container", "package", *pkg, "image", *img)
	code, err := sandbox.RunDocker(ctx, *img, script, os.Stdout, os.Stderr)
	if err != nil {
		slog.Error("smoketest failed", "err", err)
		os.Exit(1)
	}
	if code != 0 {
		slog.Error("smoketest failed", "exitCode", code)
		os.Exit(1)
	}
	slog.Info("smoketest passed")
}
