// Package docker talks to the Docker daemon for container sweeps, stats and
// signals, and drives docker compose for project stacks.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/splax/peephost/internal/domain"
)

// Client wraps the Docker SDK client.
type Client struct {
	inner *client.Client
}

// New creates a new Docker client using environment defaults.
func New(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{inner: inner}, nil
}

// Ping validates connectivity to the Docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return fmt.Errorf("docker client not initialized")
	}
	var ping types.Ping
	ping, err := c.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases resources held by the Docker client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Container is the subset of container metadata the services use.
type Container struct {
	ID    string
	Name  string
	State string
}

// ListByPrefix returns containers, running or not, whose name starts with prefix.
func (c *Client) ListByPrefix(ctx context.Context, prefix string) ([]Container, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, fmt.Errorf("container prefix cannot be empty")
	}
	list, err := c.inner.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]Container, 0, len(list))
	for _, item := range list {
		for _, name := range item.Names {
			name = strings.TrimPrefix(name, "/")
			if strings.HasPrefix(name, prefix) {
				out = append(out, Container{ID: item.ID, Name: name, State: item.State})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RemoveContainer removes an existing container if it exists.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	if err := c.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// RemoveByPrefix force removes every container whose name starts with prefix
// and returns the names removed.
func (c *Client) RemoveByPrefix(ctx context.Context, prefix string) ([]string, error) {
	list, err := c.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, ctr := range list {
		if err := c.RemoveContainer(ctx, ctr.Name); err != nil {
			return removed, err
		}
		removed = append(removed, ctr.Name)
	}
	return removed, nil
}

// Signal sends sig to the named container.
func (c *Client) Signal(ctx context.Context, name, sig string) error {
	if err := c.inner.ContainerKill(ctx, name, sig); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("signal container %s: %w", name, err)
	}
	return nil
}

// Stats samples resource usage for every container matching prefix.
// Stopped containers are reported with zero usage.
func (c *Client) Stats(ctx context.Context, prefix string) ([]domain.ContainerStat, error) {
	list, err := c.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ContainerStat, 0, len(list))
	for _, ctr := range list {
		if ctr.State != "running" {
			out = append(out, domain.ContainerStat{Name: ctr.Name, State: ctr.State})
			continue
		}
		resp, err := c.inner.ContainerStats(ctx, ctr.ID, false)
		if err != nil {
			return out, fmt.Errorf("stats for %s: %w", ctr.Name, err)
		}
		var sample container.StatsResponse
		err = json.NewDecoder(resp.Body).Decode(&sample)
		resp.Body.Close()
		if err != nil {
			return out, fmt.Errorf("decode stats for %s: %w", ctr.Name, err)
		}
		stat := toStat(sample)
		stat.Name = ctr.Name
		stat.State = ctr.State
		out = append(out, stat)
	}
	return out, nil
}
