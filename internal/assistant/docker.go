package assistant

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerRunner runs the assistant inside a disposable container, for an
// operator who wants the assistant's own process isolated from the host
// beyond the stage directory.
//
// Adapted from the teacher's internal/dispatch/docker.go: same
// bind-mount-a-context-dir-then-run-a-script shape, generalized from the
// teacher's fixed openclaw invocation to an arbitrary assistant Image plus
// prompt/schema context files.
type DockerRunner struct {
	cli *client.Client
}

func NewDockerRunner() (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("assistant: init docker client: %w", err)
	}
	return &DockerRunner{cli: cli}, nil
}

func (r *DockerRunner) Name() string { return "docker" }

func (r *DockerRunner) Run(opts RunOpts) (Result, error) {
	if opts.Image == "" {
		return Result{}, fmt.Errorf("assistant: docker runner requires an Image")
	}

	hardTimeout := opts.HardTimeout
	if hardTimeout <= 0 {
		hardTimeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), hardTimeout)
	defer cancel()

	start := time.Now()
	sessionName := fmt.Sprintf("aipl-assistant-%d", time.Now().UnixNano())

	hostCtxDir := filepath.Join(os.TempDir(), sessionName)
	if err := os.MkdirAll(hostCtxDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("assistant: create docker context dir: %w", err)
	}
	defer os.RemoveAll(hostCtxDir)

	if err := os.WriteFile(filepath.Join(hostCtxDir, "prompt.txt"), []byte(opts.Prompt), 0o644); err != nil {
		return Result{}, fmt.Errorf("assistant: write prompt file: %w", err)
	}

	workDirAbs, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return Result{}, fmt.Errorf("assistant: resolve work dir: %w", err)
	}
	if err := os.MkdirAll(workDirAbs, 0o755); err != nil {
		return Result{}, fmt.Errorf("assistant: create work dir: %w", err)
	}

	cfg := &container.Config{
		Image:      opts.Image,
		Cmd:        []string{"/bin/sh", "-c", "cat /aipl-ctx/prompt.txt | " + opts.Image + "-entrypoint"},
		Tty:        false,
		WorkingDir: "/workspace",
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: hostCtxDir, Target: "/aipl-ctx", ReadOnly: true},
			{Type: mount.TypeBind, Source: workDirAbs, Target: "/workspace"},
		},
		AutoRemove: false,
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, sessionName)
	if err != nil {
		return Result{}, fmt.Errorf("assistant: create container: %w", err)
	}
	defer r.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("assistant: start container: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Duration: time.Since(start)}, ErrHardTimeout
		}
		if err != nil {
			return Result{}, fmt.Errorf("assistant: wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	logs, err := r.cli.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{ExitCode: exitCode, Duration: time.Since(start)}, fmt.Errorf("assistant: read container logs: %w", err)
	}
	defer logs.Close()
	var stdout, stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)

	return Result{Output: stdout.String() + stderr.String(), ExitCode: exitCode, Duration: time.Since(start)}, nil
}
