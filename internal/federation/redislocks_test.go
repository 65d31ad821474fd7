package federation

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// miniRedis answers the handful of commands RedisLocks sends: SET with
// PX/EX and NX, EVALSHA (always NOSCRIPT) and EVAL of the lock scripts.
type miniRedis struct {
	ln net.Listener

	mu         sync.Mutex
	values     map[string]string
	expires    map[string]time.Time
	extensions int
}

func newMiniRedis(t *testing.T) *miniRedis {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	m := &miniRedis{
		ln:      ln,
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
	}
	go m.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return m
}

func (m *miniRedis) client(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: m.ln.Addr().String()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func (m *miniRedis) serve() {
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		go m.handle(conn)
	}
}

func (m *miniRedis) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, m.exec(args)); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, n)
	for i := range args {
		if line, err = r.ReadString('\n'); err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(line[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func (m *miniRedis) exec(args []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch strings.ToLower(args[0]) {
	case "ping":
		return "+PONG\r\n"
	case "set":
		key := args[1]
		if m.alive(key) {
			return "$-1\r\n"
		}
		var ttl time.Duration
		for i := 3; i+1 < len(args); i++ {
			n, _ := strconv.Atoi(args[i+1])
			switch strings.ToLower(args[i]) {
			case "px":
				ttl = time.Duration(n) * time.Millisecond
			case "ex":
				ttl = time.Duration(n) * time.Second
			}
		}
		m.values[key] = args[2]
		m.expires[key] = time.Now().Add(ttl)
		return "+OK\r\n"
	case "evalsha":
		return "-NOSCRIPT No matching script. Please use EVAL.\r\n"
	case "eval":
		script, key, token := args[1], args[3], args[4]
		if !m.alive(key) || m.values[key] != token {
			return ":0\r\n"
		}
		if strings.Contains(script, "pexpire") {
			ms, _ := strconv.Atoi(args[5])
			m.expires[key] = time.Now().Add(time.Duration(ms) * time.Millisecond)
			m.extensions++
			return ":1\r\n"
		}
		delete(m.values, key)
		delete(m.expires, key)
		return ":1\r\n"
	}
	return "-ERR unknown command '" + args[0] + "'\r\n"
}

// alive reports whether key is set and unexpired. Callers hold m.mu.
func (m *miniRedis) alive(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	if time.Now().After(m.expires[key]) {
		delete(m.values, key)
		delete(m.expires, key)
		return false
	}
	return true
}

func (m *miniRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive(key)
}

func (m *miniRedis) extended() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extensions
}

func (m *miniRedis) steal(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = "someone-else"
	m.expires[key] = time.Now().Add(time.Hour)
}

func TestRedisLocksExtendWhileHeld(t *testing.T) {
	server := newMiniRedis(t)
	ttl := 150 * time.Millisecond

	first := NewRedisLocks(server.client(t), "vdir:lock:", ttl, nil)
	unlock, err := first.Lock(context.Background(), []string{"accounts", "groups"})
	require.NoError(t, err)

	time.Sleep(3 * ttl)
	assert.True(t, server.has("vdir:lock:accounts"))
	assert.True(t, server.has("vdir:lock:groups"))
	assert.GreaterOrEqual(t, server.extended(), 2)

	second := NewRedisLocks(server.client(t), "vdir:lock:", ttl, nil)
	second.retry = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = second.Lock(ctx, []string{"accounts"})
	assert.Error(t, err)

	unlock()
	unlock()
	assert.False(t, server.has("vdir:lock:accounts"))
	assert.False(t, server.has("vdir:lock:groups"))

	extended := server.extended()
	time.Sleep(ttl)
	assert.Equal(t, extended, server.extended())

	unlock2, err := second.Lock(context.Background(), []string{"accounts"})
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocksLostKeyIsNotReleased(t *testing.T) {
	server := newMiniRedis(t)
	ttl := 90 * time.Millisecond

	locks := NewRedisLocks(server.client(t), "vdir:lock:", ttl, nil)
	unlock, err := locks.Lock(context.Background(), []string{"accounts"})
	require.NoError(t, err)

	server.steal("vdir:lock:accounts")
	time.Sleep(2 * ttl)
	unlock()

	assert.True(t, server.has("vdir:lock:accounts"))
}
