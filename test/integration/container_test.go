package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	pgImage   = "postgres:16-alpine"
	pgUser    = "testuser"
	pgPass    = "testpass"
	pgName    = "docregtest"
	readyWait = 30 * time.Second
)

// startPostgresContainer runs a throwaway Postgres via the Docker CLI and
// returns its connection string plus a cleanup function. Docker picks the
// host port, so concurrent runs never collide.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	name := fmt.Sprintf("docreg-it-%d", os.Getpid())

	// A crashed earlier run may have left a container behind under the
	// same name.
	exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()

	out, err := exec.CommandContext(ctx, "docker", "run", "-d",
		"--name", name,
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPass,
		"-e", "POSTGRES_DB="+pgName,
		pgImage,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run: %w\n%s", err, out)
	}
	id := strings.TrimSpace(string(out))
	cleanup := func() { exec.Command("docker", "rm", "-f", id).Run() }

	port, err := mappedPort(ctx, id)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	connStr := fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable",
		pgUser, pgPass, port, pgName)
	if err := waitForPostgres(ctx, connStr, readyWait); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

// mappedPort asks Docker which host port it bound for 5432.
func mappedPort(ctx context.Context, id string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", "port", id, "5432/tcp").Output()
	if err != nil {
		return "", fmt.Errorf("docker port: %w", err)
	}
	addr, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	i := strings.LastIndexByte(addr, ':')
	if i < 0 || i == len(addr)-1 {
		return "", fmt.Errorf("docker port: unexpected output %q", out)
	}
	return addr[i+1:], nil
}

// waitForPostgres polls until the server accepts a connection and answers
// a ping, or the timeout passes.
func waitForPostgres(ctx context.Context, connStr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		if tryPing(ctx, connStr) == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready within %v", timeout)
		case <-tick.C:
		}
	}
}

func tryPing(ctx context.Context, connStr string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}
