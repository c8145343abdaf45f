package devnet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/unlock-protocol/governance-deployer/configs"
)

const rpcWaitAttempts = 60

var ErrChainIDMismatch = errors.New("devnet node reports an unexpected chain id")

// nodeConfig builds the anvil container definition. The RPC port is published on
// loopback only.
func nodeConfig(cfg configs.Devnet) (*container.Config, *container.HostConfig, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid devnet port %d: %w", cfg.Port, err)
	}

	config := &container.Config{
		Image:      cfg.Image,
		Entrypoint: []string{"anvil"},
		Cmd: []string{
			"--host", "0.0.0.0",
			"--port", strconv.Itoa(cfg.Port),
			"--chain-id", strconv.Itoa(cfg.ChainID),
		},
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels:       map[string]string{"app": "govdeploy-devnet"},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(cfg.Port)}},
		},
	}

	return config, hostConfig, nil
}

// Up starts the devnet node, reusing a container of the same name, and waits
// until its RPC answers with the configured chain id.
func (c *Client) Up(ctx context.Context, cfg configs.Devnet) (string, error) {
	logger := c.logger.With("container", cfg.ContainerName, "image", cfg.Image)

	inspect, err := c.cli.ContainerInspect(ctx, cfg.ContainerName)
	switch {
	case err == nil && inspect.State != nil && inspect.State.Running:
		logger.Info("devnet node already running")
	case err == nil:
		logger.Info("starting existing devnet container")
		if err := c.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("failed to start container: %w", err)
		}
	case errdefs.IsNotFound(err):
		if err := c.create(ctx, cfg); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}

	url := rpcURL(cfg.Port)
	logger.With("url", url).Info("waiting for devnet RPC")
	if err := waitForRPC(ctx, url, uint64(cfg.ChainID)); err != nil {
		return "", err
	}

	logger.With("url", url).Info("devnet node is ready")

	return url, nil
}

func (c *Client) create(ctx context.Context, cfg configs.Devnet) error {
	if err := c.ensureImage(ctx, cfg); err != nil {
		return err
	}

	config, hostConfig, err := nodeConfig(cfg)
	if err != nil {
		return err
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, cfg.ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}

	c.logger.With("container_id", resp.ID).Info("devnet container started")

	return nil
}

// ensureImage builds the image when a build context is configured and pulls it
// otherwise, unless it is already present.
func (c *Client) ensureImage(ctx context.Context, cfg configs.Devnet) error {
	if cfg.BuildContext != "" {
		return c.BuildImage(ctx, cfg.BuildContext, cfg.Dockerfile, cfg.Image)
	}

	exists, err := c.ImageExists(ctx, cfg.Image)
	if err != nil {
		return fmt.Errorf("failed to inspect image: %w", err)
	}
	if exists {
		return nil
	}

	return c.PullImage(ctx, cfg.Image)
}

// Down removes the devnet container. A missing container is not an error.
func (c *Client) Down(ctx context.Context, cfg configs.Devnet) error {
	err := c.cli.ContainerRemove(ctx, cfg.ContainerName, container.RemoveOptions{Force: true})
	if errdefs.IsNotFound(err) {
		c.logger.With("container", cfg.ContainerName).Info("devnet container not found, nothing to remove")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	c.logger.With("container", cfg.ContainerName).Info("devnet container removed")

	return nil
}

func rpcURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func waitForRPC(ctx context.Context, url string, wantChainID uint64) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range rpcWaitAttempts {
		client, err := ethclient.DialContext(ctx, url)
		if err == nil {
			chainID, err := client.ChainID(ctx)
			client.Close()
			if err == nil {
				if chainID.Uint64() != wantChainID {
					return fmt.Errorf("%s answered with chain %d, want %d: %w", url, chainID, wantChainID, ErrChainIDMismatch)
				}
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return fmt.Errorf("timed out waiting for RPC at %s", url)
}
