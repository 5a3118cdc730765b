// Package sandbox provides a Docker-backed replay runner used only by the
// `capcore replay` debug subcommand: it executes a saved capability's code
// snippet inside a disposable container so a developer can eyeball what a
// learned capability actually does. It is never on the save/match path.
//
// Grounded on the teacher's internal/dispatch DockerDispatcher (session
// naming, host-side context directory, stdcopy-demultiplexed log capture),
// narrowed from a long-lived agent session to a single run-to-completion
// replay.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Runner replays a capability's code snippet inside an isolated container
// and returns its captured combined stdout/stderr.
type Runner interface {
	Replay(ctx context.Context, image string, code string) (string, error)
}

// DockerRunner is the default Runner, used by `capcore replay`.
type DockerRunner struct {
	cli *client.Client
}

// NewDockerRunner connects to the local Docker daemon via the environment's
// usual DOCKER_HOST/TLS settings. Replay calls return a clear error if the
// daemon is unreachable rather than failing at construction time, so a
// capcore binary built without Docker available still starts.
func NewDockerRunner() (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: connect to docker: %w", err)
	}
	return &DockerRunner{cli: cli}, nil
}

// Replay runs code inside a disposable container built from image, with a
// node runtime entrypoint, and returns its captured output. The container
// is always removed afterward, success or failure.
func (r *DockerRunner) Replay(ctx context.Context, image string, code string) (string, error) {
	if r.cli == nil {
		return "", fmt.Errorf("sandbox: docker client not initialized")
	}

	name := fmt.Sprintf("capcore-replay-%d", time.Now().UnixNano())
	cfg := &container.Config{
		Image:      image,
		Cmd:        []string{"node", "-e", code},
		Tty:        false,
		WorkingDir: "/workspace",
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, nil, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("sandbox: create replay container: %w", err)
	}
	defer r.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("sandbox: start replay container: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("sandbox: wait for replay container: %w", err)
		}
	case <-statusCh:
	}

	logs, err := r.cli.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("sandbox: fetch replay logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil && err != io.EOF {
		return "", fmt.Errorf("sandbox: demultiplex replay logs: %w", err)
	}

	combined := stdout.String()
	if stderr.Len() > 0 {
		combined += "\n--- stderr ---\n" + stderr.String()
	}
	return combined, nil
}
