package devnet

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/unlock-protocol/governance-deployer/configs"
)

func TestNodeConfig(t *testing.T) {
	cfg := configs.Devnet{
		Image:         "ghcr.io/foundry-rs/foundry:stable",
		ContainerName: "govdeploy-anvil",
		Port:          18545,
		ChainID:       31337,
	}

	config, hostConfig, err := nodeConfig(cfg)
	require.NoError(t, err)

	require.Equal(t, cfg.Image, config.Image)
	require.Equal(t, []string{"anvil"}, []string(config.Entrypoint))
	require.Equal(t, []string{"--host", "0.0.0.0", "--port", "18545", "--chain-id", "31337"}, []string(config.Cmd))

	port := nat.Port("18545/tcp")
	require.Contains(t, config.ExposedPorts, port)
	require.Equal(t, []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "18545"}}, hostConfig.PortBindings[port])
}

func TestWaitForRPCHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// nothing listens on port 1
	err := waitForRPC(ctx, rpcURL(1), 31337)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
