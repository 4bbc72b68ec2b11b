package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"gradehouse/internal/metrics"
	"gradehouse/pkg/models"
)

// State of a sandbox within its pool.
type State string

const (
	StateIdle State = "idle"
	StateBusy State = "busy"
)

// CommandOutput is the classified result of one command run.
type CommandOutput struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Elapsed  time.Duration `json:"elapsed"`
	Category Category      `json:"category"`
}

// HTTPResponse is the outcome of a request against the sandbox's port.
type HTTPResponse struct {
	Status  int
	Headers http.Header
	// Body is the parsed JSON body when the response is JSON, else the
	// raw text.
	Body interface{}
	Raw  string
}

// Sandbox is one isolated execution environment owned by a language
// pool. While acquired it is used by exactly one pipeline execution;
// concurrent command runs on the same sandbox are not supported.
type Sandbox struct {
	ID       string
	Language models.Language

	handle  Handle
	runtime Runtime
	cfg     PoolConfig

	State           State
	CreatedAt       time.Time
	LastPickedAt    time.Time
	WorkdirPrepared bool

	httpClient *http.Client
}

func newSandbox(id string, lang models.Language, handle Handle, rt Runtime, cfg PoolConfig) *Sandbox {
	return &Sandbox{
		ID:        id,
		Language:  lang,
		handle:    handle,
		runtime:   rt,
		cfg:       cfg,
		State:     StateIdle,
		CreatedAt: time.Now(),
	}
}

// ContainerID exposes the underlying container handle for bookkeeping.
func (s *Sandbox) ContainerID() string { return s.handle.ID }

// PrepareWorkdir stages each file at its relative path under the work
// directory, creating parent directories as needed. Content travels
// base64-encoded so binary submissions survive the shell transit.
func (s *Sandbox) PrepareWorkdir(ctx context.Context, files map[string]string) error {
	for name, content := range files {
		rel := path.Clean(name)
		if rel == "." || strings.HasPrefix(rel, "..") || path.IsAbs(rel) {
			return &StagingError{Path: name, ExitCode: -1, Stderr: "path escapes work directory"}
		}
		target := path.Join(s.cfg.WorkDir, rel)
		encoded := base64.StdEncoding.EncodeToString([]byte(content))
		cmd := fmt.Sprintf("mkdir -p %q && printf '%%s' %q | base64 -d > %q",
			path.Dir(target), encoded, target)

		out, err := s.runtime.Exec(ctx, s.handle.ID, ExecSpec{
			Cmd:            cmd,
			User:           s.cfg.User,
			Timeout:        s.cfg.CommandTimeout,
			MaxOutputBytes: s.cfg.Quota.MaxOutputBytes,
		})
		if err != nil {
			return fmt.Errorf("stage %s: %w", rel, err)
		}
		if out.ExitCode != 0 {
			return &StagingError{Path: rel, ExitCode: out.ExitCode, Stderr: out.Stderr}
		}
	}
	s.WorkdirPrepared = true
	return nil
}

// RunCommand executes a single shell command as the sandbox user and
// classifies the outcome. A zero timeout uses the pool default. A zero
// workdir runs in the staged work directory.
func (s *Sandbox) RunCommand(ctx context.Context, cmd string, timeout time.Duration, workdir string) (CommandOutput, error) {
	if timeout <= 0 {
		timeout = s.cfg.CommandTimeout
	}
	if workdir == "" {
		workdir = s.cfg.WorkDir
	}

	out, err := s.runtime.Exec(ctx, s.handle.ID, ExecSpec{
		Cmd:            cmd,
		WorkDir:        workdir,
		User:           s.cfg.User,
		Timeout:        timeout,
		MaxOutputBytes: s.cfg.Quota.MaxOutputBytes,
	})
	if err != nil {
		return CommandOutput{}, err
	}
	return s.classify(out), nil
}

// RunWithInputs feeds the input lines, joined by newlines, to the
// program's standard input through a single shell invocation. Intended
// for interactive programs driven by a fixed input script.
func (s *Sandbox) RunWithInputs(ctx context.Context, inputs []string, programCommand string) (CommandOutput, error) {
	stdin := strings.Join(inputs, "\n")
	if stdin != "" {
		stdin += "\n"
	}

	out, err := s.runtime.Exec(ctx, s.handle.ID, ExecSpec{
		Cmd:            programCommand,
		WorkDir:        s.cfg.WorkDir,
		User:           s.cfg.User,
		Stdin:          stdin,
		Timeout:        s.cfg.CommandTimeout,
		MaxOutputBytes: s.cfg.Quota.MaxOutputBytes,
	})
	if err != nil {
		return CommandOutput{}, err
	}
	return s.classify(out), nil
}

// classify maps the raw exec outcome onto a category and records the
// per-command metrics.
func (s *Sandbox) classify(out ExecResult) CommandOutput {
	result := CommandOutput{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		Elapsed:  out.Elapsed,
	}
	if out.TimedOut {
		result.Category = CategoryTimeout
	} else {
		result.Category = Classify(out.Stdout, out.Stderr, out.ExitCode, s.Language)
	}

	m := metrics.Get()
	m.CommandsTotal.WithLabelValues(string(s.Language), string(result.Category)).Inc()
	m.CommandDuration.WithLabelValues(string(s.Language)).Observe(out.Elapsed.Seconds())
	return result
}

// MakeRequest performs an HTTP request against the sandbox's published
// port. Only valid for sandboxes created with an exposed port.
func (s *Sandbox) MakeRequest(ctx context.Context, method, urlPath string, body io.Reader, headers http.Header, timeout time.Duration) (*HTTPResponse, error) {
	if s.handle.HostPort == 0 {
		return nil, ErrNoPortConfigured
	}
	if timeout <= 0 {
		timeout = s.cfg.CommandTimeout
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	url := fmt.Sprintf("http://127.0.0.1:%d%s", s.handle.HostPort, urlPath)
	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.Quota.MaxOutputBytes))
	if err != nil {
		return nil, fmt.Errorf("sandbox response read failed: %w", err)
	}

	out := &HTTPResponse{Status: resp.StatusCode, Headers: resp.Header, Raw: string(raw)}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed interface{}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			out.Body = parsed
		} else {
			out.Body = string(raw)
		}
	} else {
		out.Body = string(raw)
	}
	return out, nil
}

// destroy removes the underlying container. Called by the pool, never
// while a caller still holds the sandbox.
func (s *Sandbox) destroy(ctx context.Context) error {
	return s.runtime.Destroy(ctx, s.handle.ID)
}
