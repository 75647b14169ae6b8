package docker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipyard/internal/shell/execx"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := NewDockerClient(ctx, "")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

type recordingRunner struct {
	commands []execx.Command
	err      error
}

func (r *recordingRunner) Run(_ context.Context, cmd execx.Command) (execx.Result, error) {
	r.commands = append(r.commands, cmd)
	return execx.Result{}, r.err
}

// =============================================================================
// Runtime Client
// =============================================================================

func TestPing_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NoError(t, cli.Ping(context.Background()))
}

func TestListContainers_UnknownPrefixIsEmpty(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	containers, err := cli.ListContainers(context.Background(), ListOptions{All: true, NamePrefix: "shipyard-test-nonexistent-"})
	require.NoError(t, err)
	assert.Empty(t, containers)
}

func TestInspectContainer_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.InspectContainer(context.Background(), "shipyard-test-nonexistent")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestStopContainer_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	timeout := time.Second
	err := cli.StopContainer(context.Background(), "shipyard-test-nonexistent", &timeout)
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestPortBindings_SortedAndParsed(t *testing.T) {
	pm := nat.PortMap{
		"8080/tcp": {{HostIP: "0.0.0.0", HostPort: "3101"}},
		"80/tcp":   {{HostIP: "0.0.0.0", HostPort: "3100"}, {HostIP: "::", HostPort: "3100"}},
		"53/udp":   nil,
	}
	ports := portBindings(pm)
	require.Len(t, ports, 3)
	assert.Equal(t, PortBinding{ContainerPort: 80, HostPort: 3100, Protocol: "tcp", HostIP: "0.0.0.0"}, ports[0])
	assert.Equal(t, "::", ports[1].HostIP)
	assert.Equal(t, 3101, ports[2].HostPort)
}

func TestContainerInfo_Helpers(t *testing.T) {
	c := ContainerInfo{Status: ContainerStatusRunning, Labels: map[string]string{LabelComposeService: "web"}}
	assert.True(t, c.Running())
	assert.Equal(t, "web", c.Service())
	assert.False(t, ContainerInfo{Status: ContainerStatusExited}.Running())
}

func TestRuntimeError(t *testing.T) {
	err := &RuntimeError{Op: "stop", Container: "abc123", Kind: ErrContainerNotRunning}
	assert.Equal(t, "docker stop abc123: container is not running", err.Error())
	assert.True(t, errors.Is(err, ErrContainerNotRunning))

	cause := errors.New("dial unix /var/run/docker.sock: connect: no such file")
	err = &RuntimeError{Op: "ping", Kind: ErrConnectionFailed, Err: cause}
	assert.Equal(t, "docker ping: docker daemon unreachable: "+cause.Error(), err.Error())
	assert.True(t, errors.Is(err, ErrConnectionFailed))
	assert.True(t, errors.Is(err, cause))

	err = containerError("rm", "web-1", cause)
	assert.Nil(t, err.Kind)
	assert.Equal(t, "docker rm web-1: "+cause.Error(), err.Error())
}

// =============================================================================
// Compose Driver
// =============================================================================

func TestCompose_UpBuildsCommand(t *testing.T) {
	runner := &recordingRunner{}
	c := NewCompose(runner, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := c.Up(context.Background(), ComposeRequest{
		Project: "app-staging",
		Dir:     "/src/app",
		Files:   []string{"docker-compose.staging.yml", "docker-compose.staging.debug.yml"},
		Env:     []string{"SHIPYARD_ENV=staging"},
	})
	require.NoError(t, err)
	require.Len(t, runner.commands, 1)

	cmd := runner.commands[0]
	assert.Equal(t, "docker compose -p app-staging -f docker-compose.staging.yml -f docker-compose.staging.debug.yml up --detach --build", cmd.String())
	assert.Equal(t, "/src/app", cmd.Dir)
	assert.Equal(t, []string{"SHIPYARD_ENV=staging"}, cmd.Env)
	assert.NotNil(t, cmd.Stream)
}

func TestCompose_DownWithoutFiles(t *testing.T) {
	runner := &recordingRunner{}
	c := NewCompose(runner, nil, nil)

	require.NoError(t, c.Down(context.Background(), ComposeRequest{Project: "app-local"}))
	assert.Equal(t, "docker compose -p app-local down --remove-orphans", runner.commands[0].String())
}

func TestCompose_FailureCarriesCommand(t *testing.T) {
	runner := &recordingRunner{err: &execx.CommandError{Command: "docker compose -p app-local up --detach --build", ExitCode: 1, Err: errors.New("exit status 1")}}
	c := NewCompose(runner, nil, nil)

	err := c.Up(context.Background(), ComposeRequest{Project: "app-local"})
	var cerr *execx.CommandError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, strings.HasPrefix(cerr.Command, "docker compose -p app-local"))
}
