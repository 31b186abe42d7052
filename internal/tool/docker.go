package tool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	QueryLogsName    = "query_logs"
	CheckEnvVarsName = "check_env_vars"

	defaultLogTail = 200
	maxLogTail     = 2000
)

// ErrContainerNotAllowed is returned when a tool targets a container outside the allowlist.
var ErrContainerNotAllowed = errors.New("tool: container not allowed") //nolint:gochecknoglobals // sentinel error

// DockerAPI is the subset of the Docker client used by the container tools.
type DockerAPI interface {
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// NewDockerClient connects to the Docker daemon at host.
func NewDockerClient(host string) (*client.Client, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("tool.NewDockerClient: %w", err)
	}
	return c, nil
}

// ContainerTools exposes container logs and environment checks to the model.
type ContainerTools struct {
	api       DockerAPI
	allowed   []string // empty allows any container
	maxOutput int
}

// NewContainerTools creates container tools. allowed restricts which
// containers may be inspected; an empty list allows all.
func NewContainerTools(api DockerAPI, allowed []string) *ContainerTools {
	return &ContainerTools{api: api, allowed: allowed, maxOutput: DefaultMaxOutput}
}

// Register adds query_logs and check_env_vars to r.
func (c *ContainerTools) Register(r *Registry) {
	r.Register(Tool{
		Name:        QueryLogsName,
		Description: "Fetch recent log lines from a service container. Use grep to filter for a substring and since for a relative window such as 15m.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"container": {"type": "string", "description": "Container name or ID"},
				"since": {"type": "string", "description": "Only logs newer than this, e.g. 15m, 2h or an RFC3339 timestamp"},
				"tail": {"type": "integer", "description": "Number of trailing lines to read (default 200, max 2000)"},
				"grep": {"type": "string", "description": "Case-insensitive substring filter"}
			},
			"required": ["container"]
		}`),
		Handler: c.queryLogs,
	})
	r.Register(Tool{
		Name:        CheckEnvVarsName,
		Description: "Check whether environment variables are set on a service container. Values are never returned.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"container": {"type": "string", "description": "Container name or ID"},
				"names": {"type": "array", "items": {"type": "string"}, "description": "Variable names to check"}
			},
			"required": ["container", "names"]
		}`),
		Handler: c.checkEnvVars,
	})
}

// QueryLogsInput is the input of the query_logs tool.
type QueryLogsInput struct {
	Container string `json:"container"`
	Since     string `json:"since,omitempty"`
	Tail      int    `json:"tail,omitempty"`
	Grep      string `json:"grep,omitempty"`
}

func (c *ContainerTools) queryLogs(ctx context.Context, raw json.RawMessage) (string, error) {
	var in QueryLogsInput
	if err := decodeInput(raw, &in); err != nil {
		return "", err
	}
	if err := c.checkContainer(in.Container); err != nil {
		return "", err
	}

	tail := in.Tail
	if tail <= 0 {
		tail = defaultLogTail
	}
	tail = min(tail, maxLogTail)

	reader, err := c.api.ContainerLogs(ctx, in.Container, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Since:      in.Since,
		Tail:       fmt.Sprint(tail),
		Timestamps: true,
	})
	if err != nil {
		return "", fmt.Errorf("tool.ContainerTools.queryLogs: %w", err)
	}
	defer reader.Close()

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("tool.ContainerTools.queryLogs: read: %w", err)
	}

	lines := filterLines(demux(body), in.Grep)
	if len(lines) == 0 {
		return "no matching log lines", nil
	}
	// Every line starts with an RFC3339Nano UTC timestamp, so sorting
	// interleaves stdout and stderr back into arrival order.
	slices.Sort(lines)

	return truncateTail(strings.Join(lines, "\n"), c.maxOutput), nil
}

// CheckEnvVarsInput is the input of the check_env_vars tool.
type CheckEnvVarsInput struct {
	Container string   `json:"container"`
	Names     []string `json:"names"`
}

// EnvVarStatus reports whether a single variable is set.
type EnvVarStatus struct {
	Configured bool `json:"configured"`
}

func (c *ContainerTools) checkEnvVars(ctx context.Context, raw json.RawMessage) (string, error) {
	var in CheckEnvVarsInput
	if err := decodeInput(raw, &in); err != nil {
		return "", err
	}
	if len(in.Names) == 0 {
		return "", fmt.Errorf("%w: names is required", ErrInvalidInput)
	}
	if err := c.checkContainer(in.Container); err != nil {
		return "", err
	}

	info, err := c.api.ContainerInspect(ctx, in.Container)
	if err != nil {
		return "", fmt.Errorf("tool.ContainerTools.checkEnvVars: %w", err)
	}

	set := make(map[string]bool)
	if info.Config != nil {
		for _, kv := range info.Config.Env {
			name, value, _ := strings.Cut(kv, "=")
			set[name] = strings.TrimSpace(value) != ""
		}
	}

	out := make(map[string]EnvVarStatus, len(in.Names))
	for _, name := range in.Names {
		out[name] = EnvVarStatus{Configured: set[name]}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("tool.ContainerTools.checkEnvVars: marshal: %w", err)
	}
	return string(b), nil
}

func (c *ContainerTools) checkContainer(name string) error {
	if name == "" {
		return fmt.Errorf("%w: container is required", ErrInvalidInput)
	}
	if len(c.allowed) > 0 && !slices.Contains(c.allowed, name) {
		return fmt.Errorf("%w: %s", ErrContainerNotAllowed, name)
	}
	return nil
}

// demux splits Docker's multiplexed log stream. Containers started with a TTY
// produce a raw stream, which is returned unchanged.
func demux(raw []byte) string {
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, bytes.NewReader(raw)); err != nil {
		return string(raw)
	}
	if stderr.Len() == 0 {
		return stdout.String()
	}
	if stdout.Len() == 0 {
		return stderr.String()
	}
	return stdout.String() + stderr.String()
}

func filterLines(text, grep string) []string {
	needle := strings.ToLower(grep)
	var lines []string

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
