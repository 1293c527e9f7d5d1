// Where: internal/deploy/docker.go
// What: Terraform runner backed by the docker engine.
// Why: Containerized runs isolate terraform and its providers from the host.
package deploy

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DefaultTerraformImage is the image used when none is configured.
const DefaultTerraformImage = "hashicorp/terraform:1.9"

// DockerRunner executes terraform inside a one-shot container with the
// working directory bind-mounted at /workspace.
type DockerRunner struct {
	Image  string
	client *client.Client
}

// NewDockerRunner connects to the local docker engine.
func NewDockerRunner(img string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker runner: %w", err)
	}
	if img == "" {
		img = DefaultTerraformImage
	}
	return &DockerRunner{Image: img, client: cli}, nil
}

// Run creates, starts, and waits on a terraform container, capturing its
// output. The container is always removed; credentials exist only in the
// container's environment.
func (r *DockerRunner) Run(ctx context.Context, dir string, extraEnv map[string]string, args ...string) (RunResult, error) {
	if err := r.ensureImage(ctx); err != nil {
		return RunResult{}, err
	}

	created, err := r.client.ContainerCreate(ctx,
		&container.Config{
			Image:      r.Image,
			Cmd:        args,
			Env:        flattenEnv(extraEnv),
			WorkingDir: "/workspace",
		},
		&container.HostConfig{
			Binds: []string{dir + ":/workspace"},
		},
		nil, nil, "")
	if err != nil {
		return RunResult{}, fmt.Errorf("docker runner: create container: %w", err)
	}
	defer func() {
		_ = r.client.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("docker runner: start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			return RunResult{}, fmt.Errorf("docker runner: wait: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		return RunResult{ExitCode: -1}, fmt.Errorf("docker runner: %w", ctx.Err())
	}

	logs, err := r.client.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return RunResult{ExitCode: exitCode}, fmt.Errorf("docker runner: logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return RunResult{ExitCode: exitCode}, fmt.Errorf("docker runner: demux logs: %w", err)
	}
	return RunResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

func (r *DockerRunner) ensureImage(ctx context.Context) error {
	_, err := r.client.ImageInspect(ctx, r.Image)
	if err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, r.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker runner: pull %s: %w", r.Image, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}
