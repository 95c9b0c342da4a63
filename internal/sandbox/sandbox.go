// Package sandbox executes a rendered runner script end to end, either in a
// disposable container or locally under a pty. It backs cmd/smoketest — the
// deployment check that the scripts we serve actually install and run.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/creack/pty"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// RunDocker runs the script with python3 inside a fresh container of the
// given image and returns the exit code. The container gets default
// networking — the script needs to reach PyPI.
func RunDocker(ctx context.Context, imageRef, script string, stdout, stderr io.Writer) (int, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return 0, fmt.Errorf("docker sdk: %w", err)
	}
	defer cli.Close()

	// Pull unconditionally — if the image is already local and the registry
	// is unreachable, container create will still succeed below.
	if rc, err := cli.ImagePull(ctx, imageRef, image.PullOptions{}); err != nil {
		slog.Warn("image pull", "image", imageRef, "err", err)
	} else {
		io.Copy(io.Discard, rc)
		rc.Close()
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image: imageRef,
		Cmd:   []string{"python3", "-c", script},
	}, nil, nil, nil, "")
	if err != nil {
		return 0, fmt.Errorf("container create: %w", err)
	}
	defer func() {
		if err := cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("container remove", "id", resp.ID, "err", err)
		}
	}()

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("container start: %w", err)
	}

	logs, err := cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return 0, fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		slog.Debug("log copy", "err", err)
	}

	waitCh, errCh := cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case w := <-waitCh:
		if w.Error != nil {
			return int(w.StatusCode), fmt.Errorf("container wait: %s", w.Error.Message)
		}
		return int(w.StatusCode), nil
	case err := <-errCh:
		return 0, fmt.Errorf("container wait: %w", err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// RunLocal runs the script with the host python3 under a pty, so the
// script's tty-only spinner path gets exercised too. Output (both streams,
// interleaved — that's what a pty gives you) is copied to out.
func RunLocal(ctx context.Context, script string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, "python3", "-c", script)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	defer ptmx.Close()

	// EIO when the child exits and the slave side closes is normal.
	io.Copy(out, ptmx)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("python3: %w", err)
	}
	return nil
}
