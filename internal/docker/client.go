package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// defaultPingTimeout bounds the daemon health check. Docker Desktop on
// macOS can take a few seconds to answer.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker Engine SDK client.
//
// Usage:
//
//	c, err := docker.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* Docker not running */ }
type Client struct {
	inner *client.Client
}

// NewClient creates a new Docker client with automatic socket detection.
//
// DOCKER_HOST is used as-is when set. Otherwise the platform default
// socket is tried:
//   - Linux: /var/run/docker.sock
//   - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//   - Windows: npipe:////./pipe/docker_engine
//
// Returns a model.CLIError with ExitDockerNotRunning if no socket is found.
func NewClient() (*Client, error) {
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return newClientWithHost(dockerHost)
	}

	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
	}
	return newClientWithHost(host)
}

func newClientWithHost(host string) (*Client, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}
	return &Client{inner: c}, nil
}

// detectDockerHost returns the Docker host URI for the current platform.
// Only socket existence is checked here; Ping verifies connectivity.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{"/var/run/docker.sock"})

	case "darwin":
		paths := []string{"/var/run/docker.sock"}
		if homeDir, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(homeDir, ".docker", "run", "docker.sock"))
		}
		return detectUnixSocket(paths)

	case "windows":
		// os.Stat does not work on named pipes, so try a dial.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			_ = conn.Close()
			return "npipe://" + pipePath, nil
		}
		return "", fmt.Errorf("docker named pipe not found at %s: %w", pipePath, err)

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the host URI of the first path that exists.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("docker socket not found at any of: %v", paths)
}

// Ping verifies that the Docker daemon is reachable and responsive.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding, is Docker running?",
			err,
		)
	}
	return nil
}

// Close releases all resources held by the Docker client.
// Close is safe to call multiple times.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}
