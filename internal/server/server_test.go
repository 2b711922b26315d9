package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{TCPHost: "127.0.0.1", TCPPort: 0}
	srv := New(cfg, discardLogger(), memory.New(discardLogger()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for the listener to bind.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		select {
		case err := <-errCh:
			t.Fatalf("server exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			t.Logf("stop: %v", err)
		}
	})
	return srv
}

type testClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialTestServer(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) readLine(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func (c *testClient) sendLine(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func TestServerGreetsAndServes(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestServer(t, srv.Addr())

	assert.Equal(t, Greeting, c.readLine(t))

	c.sendLine(t, "register alice pw 100")
	assert.Equal(t, "User registered.", c.readLine(t))

	c.sendLine(t, "login alice pw")
	assert.Equal(t, "Login successful.", c.readLine(t))

	c.sendLine(t, "getbalance")
	assert.Equal(t, "$100.00", c.readLine(t))

	c.sendLine(t, "exit")
	assert.Equal(t, "Goodbye!", c.readLine(t))
}

func TestServerMultipleSessions(t *testing.T) {
	srv := startTestServer(t)

	alice := dialTestServer(t, srv.Addr())
	bob := dialTestServer(t, srv.Addr())
	alice.readLine(t)
	bob.readLine(t)

	alice.sendLine(t, "register alice pw 100")
	alice.readLine(t)
	alice.sendLine(t, "login alice pw")
	alice.readLine(t)
	alice.sendLine(t, "additem Ball 30")
	alice.readLine(t)
	alice.sendLine(t, "sellitem Ball")
	alice.readLine(t)

	// The listing is visible from the other session immediately.
	bob.sendLine(t, "listitems")
	assert.Equal(t, "Ball - $30.00 - Seller: alice", bob.readLine(t))

	bob.sendLine(t, "register bob pw 50")
	bob.readLine(t)
	bob.sendLine(t, "login bob pw")
	bob.readLine(t)
	bob.sendLine(t, "buy Ball")
	assert.Equal(t, "Transaction processed.", bob.readLine(t))

	alice.sendLine(t, "getbalance")
	assert.Equal(t, "$130.00", alice.readLine(t))
}

func TestServerSurvivesAbruptDisconnect(t *testing.T) {
	srv := startTestServer(t)

	dropped := dialTestServer(t, srv.Addr())
	dropped.readLine(t)
	require.NoError(t, dropped.conn.Close())

	// Other sessions keep working after a peer vanishes mid-session.
	c := dialTestServer(t, srv.Addr())
	assert.Equal(t, Greeting, c.readLine(t))
	c.sendLine(t, "listitems")
	assert.Equal(t, "No items found.", c.readLine(t))
}

func TestServerMultiLineResponse(t *testing.T) {
	srv := startTestServer(t)
	c := dialTestServer(t, srv.Addr())
	c.readLine(t)

	c.sendLine(t, "register alice pw 100")
	c.readLine(t)
	c.sendLine(t, "login alice pw")
	c.readLine(t)
	c.sendLine(t, "additem Ball 30")
	c.readLine(t)
	c.sendLine(t, "additem Bat 10")
	c.readLine(t)
	c.sendLine(t, "sellitem Ball")
	c.readLine(t)
	c.sendLine(t, "sellitem Bat")
	c.readLine(t)

	c.sendLine(t, "listitems")
	assert.Equal(t, "Ball - $30.00 - Seller: alice", c.readLine(t))
	assert.Equal(t, "Bat - $10.00 - Seller: alice", c.readLine(t))
}
