package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"gradehouse/internal/logging"
)

// ContainerSpec describes one container to create and start.
type ContainerSpec struct {
	Name       string
	Image      string
	Labels     map[string]string
	User       string
	WorkDir    string
	ScratchDir string
	// WorkDirSize / ScratchSize size the tmpfs mounts; the work mount
	// allows exec (compiled submissions run from it), scratch does not.
	WorkDirSize string
	ScratchSize string
	ExposePort  int
	Quota       ResourceQuota
}

// Handle identifies a started container.
type Handle struct {
	ID string
	// HostPort is the published host port when the spec exposed one.
	HostPort int
}

// ExecSpec describes one command execution inside a container.
type ExecSpec struct {
	Cmd            string
	WorkDir        string
	User           string
	Stdin          string
	Timeout        time.Duration
	MaxOutputBytes int64
}

// ExecResult is the raw outcome of one exec, before classification.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
	TimedOut bool
}

// Runtime abstracts the container engine so pools and sandboxes can be
// exercised without Docker in tests.
type Runtime interface {
	Create(ctx context.Context, spec ContainerSpec) (Handle, error)
	Exec(ctx context.Context, containerID string, spec ExecSpec) (ExecResult, error)
	Destroy(ctx context.Context, containerID string) error
	// ListLabeled returns IDs of all containers (running or not)
	// carrying the given label, for orphan sweeps.
	ListLabeled(ctx context.Context, label string) ([]string, error)
	Close() error
}

// DockerRuntime implements Runtime on the Docker SDK. gVisor isolation
// runs through the Docker runtime=runsc path when available.
type DockerRuntime struct {
	cli           *client.Client
	gvisorRuntime string
}

// NewDockerRuntime creates a Docker SDK-backed runtime.
func NewDockerRuntime(host, gvisorRuntime string) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client init failed: %w", err)
	}
	return &DockerRuntime{cli: cli, gvisorRuntime: gvisorRuntime}, nil
}

// Create builds, starts, and (when a port is exposed) inspects a
// container. When the gVisor runtime is configured but unavailable the
// create is retried once on the engine default runtime; that retry is
// the only fallback path.
func (r *DockerRuntime) Create(ctx context.Context, spec ContainerSpec) (Handle, error) {
	handle, err := r.create(ctx, spec, r.gvisorRuntime)
	if err != nil && r.gvisorRuntime != "" {
		logging.L().Warn("gvisor runtime unavailable, falling back to default runtime",
			zap.String("runtime", r.gvisorRuntime), zap.Error(err))
		handle, err = r.create(ctx, spec, "")
	}
	return handle, err
}

func (r *DockerRuntime) create(ctx context.Context, spec ContainerSpec, runtimeName string) (Handle, error) {
	tmpfs := map[string]string{
		spec.WorkDir:    fmt.Sprintf("rw,exec,nosuid,size=%s,mode=1777", spec.WorkDirSize),
		spec.ScratchDir: fmt.Sprintf("rw,noexec,nosuid,size=%s,mode=1777", spec.ScratchSize),
	}

	pidsLimit := spec.Quota.PidsLimit
	hostCfg := &container.HostConfig{
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		Runtime:        runtimeName,
		Tmpfs:          tmpfs,
		NetworkMode:    "none",
		Resources: container.Resources{
			Memory:     spec.Quota.MemoryBytes,
			MemorySwap: spec.Quota.MemoryBytes,
			NanoCPUs:   int64(spec.Quota.CPUCores * 1_000_000_000),
			PidsLimit:  &pidsLimit,
		},
	}

	cfg := &container.Config{
		Image:           spec.Image,
		Cmd:             []string{"sleep", "infinity"},
		User:            spec.User,
		WorkingDir:      spec.WorkDir,
		Labels:          spec.Labels,
		NetworkDisabled: spec.ExposePort == 0,
	}

	if spec.ExposePort > 0 {
		port := nat.Port(fmt.Sprintf("%d/tcp", spec.ExposePort))
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.NetworkMode = "bridge"
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
		}
	}

	created, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, spec.Name)
	if err != nil {
		return Handle{}, fmt.Errorf("container create failed: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = r.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
		return Handle{}, fmt.Errorf("container start failed: %w", err)
	}

	handle := Handle{ID: created.ID}
	if spec.ExposePort > 0 {
		hostPort, err := r.publishedPort(ctx, created.ID, spec.ExposePort)
		if err != nil {
			_ = r.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
			return Handle{}, err
		}
		handle.HostPort = hostPort
	}
	return handle, nil
}

func (r *DockerRuntime) publishedPort(ctx context.Context, containerID string, exposed int) (int, error) {
	info, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return 0, fmt.Errorf("container inspect failed: %w", err)
	}
	port := nat.Port(fmt.Sprintf("%d/tcp", exposed))
	bindings := info.NetworkSettings.Ports[port]
	if len(bindings) == 0 {
		return 0, fmt.Errorf("no host binding published for port %d", exposed)
	}
	hostPort, err := strconv.Atoi(bindings[0].HostPort)
	if err != nil {
		return 0, fmt.Errorf("unparsable host port %q: %w", bindings[0].HostPort, err)
	}
	return hostPort, nil
}

// Exec runs one shell command inside a running container and captures
// bounded stdout/stderr. A deadline overrun reports exit code 137; the
// stuck container is reclaimed later by the pool watchdog.
func (r *DockerRuntime) Exec(ctx context.Context, containerID string, spec ExecSpec) (ExecResult, error) {
	start := time.Now()

	execCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	created, err := r.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		User:         spec.User,
		WorkingDir:   spec.WorkDir,
		Cmd:          []string{"sh", "-c", spec.Cmd},
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  spec.Stdin != "",
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec create failed: %w", err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec attach failed: %w", err)
	}
	defer attach.Close()

	if spec.Stdin != "" {
		if _, err := io.WriteString(attach.Conn, spec.Stdin); err != nil {
			return ExecResult{}, fmt.Errorf("exec stdin write failed: %w", err)
		}
		if cw, ok := interface{}(attach.Conn).(interface{ CloseWrite() error }); ok {
			_ = cw.CloseWrite()
		}
	}

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(
			&limitedWriter{w: &stdout, limit: spec.MaxOutputBytes},
			&limitedWriter{w: &stderr, limit: spec.MaxOutputBytes},
			attach.Reader,
		)
		copyDone <- copyErr
	}()

	result := ExecResult{}
	timedOut, copyErr := awaitCopy(execCtx, copyDone, func() { attach.Close() })
	if timedOut {
		result.TimedOut = true
		result.ExitCode = 137
	} else {
		if copyErr != nil && copyErr != io.EOF {
			return ExecResult{}, fmt.Errorf("exec output read failed: %w", copyErr)
		}
		inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return ExecResult{}, fmt.Errorf("exec inspect failed: %w", err)
		}
		result.ExitCode = inspect.ExitCode
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Elapsed = time.Since(start)
	return result, nil
}

// awaitCopy waits for the output copier to finish. On a deadline it
// closes the attachment to unblock the copier, then still waits for it,
// so the caller only reads the output buffers after all writes are done.
func awaitCopy(ctx context.Context, copyDone <-chan error, closeAttach func()) (timedOut bool, copyErr error) {
	select {
	case <-ctx.Done():
		closeAttach()
		return true, <-copyDone
	case err := <-copyDone:
		return false, err
	}
}

// Destroy force-removes a container. Removing an already-gone container
// is not an error.
func (r *DockerRuntime) Destroy(ctx context.Context, containerID string) error {
	err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// ListLabeled returns all container IDs carrying the given label.
func (r *DockerRuntime) ListLabeled(ctx context.Context, label string) ([]string, error) {
	list, err := r.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", label)),
	})
	if err != nil {
		return nil, fmt.Errorf("container list failed: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Close releases the underlying SDK client.
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.limit <= 0 {
		return lw.w.Write(p)
	}
	if lw.written >= lw.limit {
		return len(p), nil
	}
	remaining := lw.limit - lw.written
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
