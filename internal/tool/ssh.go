package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	RunSSHCommandName = "run_ssh_command"

	defaultSSHTimeout = 30 * time.Second
)

// ErrHostNotAllowed is returned when an SSH target is not in the allowlist.
var ErrHostNotAllowed = errors.New("tool: ssh host not allowed") //nolint:gochecknoglobals // sentinel error

// SSHConfig configures the run_ssh_command tool.
type SSHConfig struct {
	User           string
	KeyPath        string
	KnownHostsPath string
	AllowedHosts   []string
	Timeout        time.Duration
}

// SSHRunner executes one-off commands on allowlisted hosts.
type SSHRunner struct {
	user      string
	allowed   []string
	timeout   time.Duration
	auth      []ssh.AuthMethod
	hostKeys  ssh.HostKeyCallback
	maxOutput int
}

// LoadSSHRunner reads the private key and known_hosts file named in cfg.
func LoadSSHRunner(cfg SSHConfig) (*SSHRunner, error) {
	keyPEM, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("tool.LoadSSHRunner: read key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("tool.LoadSSHRunner: parse key: %w", err)
	}

	hostKeys, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("tool.LoadSSHRunner: known_hosts: %w", err)
	}

	return NewSSHRunner(cfg, signer, hostKeys), nil
}

// NewSSHRunner creates a runner from an already loaded signer and host key callback.
func NewSSHRunner(cfg SSHConfig, signer ssh.Signer, hostKeys ssh.HostKeyCallback) *SSHRunner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSSHTimeout
	}
	return &SSHRunner{
		user:      cfg.User,
		allowed:   cfg.AllowedHosts,
		timeout:   timeout,
		auth:      []ssh.AuthMethod{ssh.PublicKeys(signer)},
		hostKeys:  hostKeys,
		maxOutput: DefaultMaxOutput,
	}
}

// HostAllowed reports whether host (with or without a port) is allowlisted.
func (s *SSHRunner) HostAllowed(host string) bool {
	name := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		name = h
	}
	return slices.Contains(s.allowed, name) || slices.Contains(s.allowed, host)
}

// Run executes command on host and returns its combined output. A non-zero
// exit status is returned as output rather than as an error so the model can
// read what went wrong.
func (s *SSHRunner) Run(ctx context.Context, host, command string) (string, error) {
	if !s.HostAllowed(host) {
		return "", fmt.Errorf("tool.SSHRunner.Run(%q): %w", host, ErrHostNotAllowed)
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("tool.SSHRunner.Run(%q): dial: %w", host, err)
	}

	// The handshake has no context of its own, so bound it with a deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            s.user,
		Auth:            s.auth,
		HostKeyCallback: s.hostKeys,
		Timeout:         s.timeout,
	})
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("tool.SSHRunner.Run(%q): handshake: %w", host, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("tool.SSHRunner.Run(%q): session: %w", host, err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = client.Close()
		return "", fmt.Errorf("tool.SSHRunner.Run(%q): %w", host, ctx.Err())
	case runErr := <-done:
		text := truncateTail(out.String(), s.maxOutput)
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return fmt.Sprintf("exit status %d\n%s", exitErr.ExitStatus(), text), nil
		}
		if runErr != nil {
			return "", fmt.Errorf("tool.SSHRunner.Run(%q): %w", host, runErr)
		}
		return text, nil
	}
}

// RunSSHCommandInput is the input of the run_ssh_command tool.
type RunSSHCommandInput struct {
	Host    string `json:"host"`
	Command string `json:"command"`
}

// Register adds run_ssh_command to r.
func (s *SSHRunner) Register(r *Registry) {
	r.Register(Tool{
		Name: RunSSHCommandName,
		Description: "Run a read-only diagnostic shell command on an allowlisted server over SSH. Allowed hosts: " +
			strings.Join(s.allowed, ", "),
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"host": {"type": "string", "description": "Target host, optionally host:port"},
				"command": {"type": "string", "description": "Shell command to execute"}
			},
			"required": ["host", "command"]
		}`),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var in RunSSHCommandInput
			if err := decodeInput(raw, &in); err != nil {
				return "", err
			}
			if in.Host == "" {
				return "", fmt.Errorf("%w: host is required", ErrInvalidInput)
			}
			if strings.TrimSpace(in.Command) == "" {
				return "", fmt.Errorf("%w: command is required", ErrInvalidInput)
			}
			return s.Run(ctx, in.Host, in.Command)
		},
	})
}
