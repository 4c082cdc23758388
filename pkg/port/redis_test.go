package port

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/nobletooth/seqlist/pkg/storage"
	"github.com/nobletooth/seqlist/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *redisHandler {
	t.Helper()
	utils.SetTestFlag(t, "store_shard_count", "2")
	handler, err := newRedisHandler(storage.NewListStore())
	require.NoError(t, err)
	return handler
}

// run executes the given space separated command line.
func run(handler *redisHandler, line string) redisOutput {
	fields := strings.Fields(line)
	return handler.handle(redisCommand{command: fields[0], args: fields[1:]})
}

func TestNewRedisHandler(t *testing.T) {
	_, err := newRedisHandler(nil)
	assert.Error(t, err)
}

func TestRedisHandler(t *testing.T) {
	handler := newTestHandler(t)

	for _, testCase := range []struct {
		line     string
		expected redisOutput
	}{
		{line: "PING", expected: writeRedisString("PONG")},
		{line: "ping hello", expected: writeRedisBulk("hello")},
		{line: "RPUSH k b c", expected: writeRedisInt(2)},
		{line: "LPUSH k a", expected: writeRedisInt(3)},
		{line: "LRANGE k 0 -1", expected: writeRedisArray([]string{"a", "b", "c"})},
		{line: "LINSERTAT k 1 x", expected: writeRedisInt(4)},
		{line: "LINSERTAT k 99 z", expected: writeRedisInt(5)},
		{line: "LRANGE k 0 -1", expected: writeRedisArray([]string{"a", "x", "b", "c", "z"})},
		{line: "LLEN k", expected: writeRedisInt(5)},
		{line: "LCONTAINS k x", expected: writeRedisInt(1)},
		{line: "LREMAT k 1", expected: writeRedisBulk("x")},
		{line: "LCONTAINS k x", expected: writeRedisInt(0)},
		{line: "LREMAT k 99", expected: writeRedisBulk("z")},
		{line: "LPOP k", expected: writeRedisBulk("a")},
		{line: "RPOP k", expected: writeRedisBulk("c")},
		{line: "RPOP k", expected: writeRedisBulk("b")},
		{line: "RPOP k", expected: writeRedisNil()},
		{line: "LPOP k", expected: writeRedisNil()},
		{line: "LREMAT k 0", expected: writeRedisNil()},
		{line: "LLEN k", expected: writeRedisInt(0)},
		{line: "LRANGE k 0 -1", expected: writeRedisArray([]string{})},
		{line: "RPUSH list1 v", expected: writeRedisInt(1)},
		{line: "RPUSH list2 v", expected: writeRedisInt(1)},
		{line: "RPUSH other v", expected: writeRedisInt(1)},
		{line: "KEYS list*", expected: writeRedisArray([]string{"list1", "list2"})},
		{line: "DEL list1 other missing", expected: writeRedisInt(2)},
		{line: "KEYS *", expected: writeRedisArray([]string{"list2"})},
		{line: "QUIT", expected: closeRedisConnection(RedisOk)},
	} {
		t.Run(testCase.line, func(t *testing.T) {
			assert.Equal(t, testCase.expected, run(handler, testCase.line))
		})
	}
}

func TestRedisHandler_Errors(t *testing.T) {
	handler := newTestHandler(t)
	for _, line := range []string{
		"PING a b",
		"LPUSH k",
		"RPUSH k",
		"LPOP",
		"RPOP a b",
		"LLEN",
		"LRANGE k 0",
		"LRANGE k zero -1",
		"LRANGE k 0 last",
		"LINSERTAT k 1",
		"LINSERTAT k one v",
		"LREMAT k",
		"LREMAT k one",
		"LCONTAINS k",
		"DEL",
		"KEYS",
		"NOSUCHCOMMAND",
	} {
		t.Run(line, func(t *testing.T) {
			output := run(handler, line)
			require.NotNil(t, output.err)
			assert.True(t, strings.HasPrefix(*output.err, "ERR "), *output.err)
		})
	}
}

func TestRunRedisServer_EmptyAddress(t *testing.T) {
	utils.SetTestFlag(t, "address", "")
	assert.Error(t, RunRedisServer(t.Context(), storage.NewListStore()))
}

func TestServeRedis(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	listening := make(chan net.Addr, 1)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- serveRedis(ctx, storage.NewListStore(), "127.0.0.1:0", func(addr net.Addr) { listening <- addr })
	}()

	var addr net.Addr
	select {
	case addr = <-listening:
	case err := <-serverErr:
		t.Fatalf("Server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not start in time.")
	}

	conn, err := redis.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	pong, err := redis.String(conn.Do("PING"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)

	for _, fragment := range []string{"Hello", " world,", "I am ", "aaaa", " super mega developer"} {
		_, err := conn.Do("RPUSH", "sentence", fragment)
		require.NoError(t, err)
	}
	length, err := redis.Int(conn.Do("LLEN", "sentence"))
	require.NoError(t, err)
	assert.Equal(t, 5, length)
	fragments, err := redis.Strings(conn.Do("LRANGE", "sentence", 0, -1))
	require.NoError(t, err)
	assert.Equal(t, "Hello world,I am aaaa super mega developer", strings.Join(fragments, ""))

	removed, err := redis.String(conn.Do("LREMAT", "sentence", 3))
	require.NoError(t, err)
	assert.Equal(t, "aaaa", removed)
	fragments, err = redis.Strings(conn.Do("LRANGE", "sentence", 0, -1))
	require.NoError(t, err)
	assert.Equal(t, "Hello world,I am  super mega developer", strings.Join(fragments, ""))

	hasHello, err := redis.Bool(conn.Do("LCONTAINS", "sentence", "Hello"))
	require.NoError(t, err)
	assert.True(t, hasHello)
	hasRemoved, err := redis.Bool(conn.Do("LCONTAINS", "sentence", "aaaa"))
	require.NoError(t, err)
	assert.False(t, hasRemoved)

	_, err = redis.String(conn.Do("LPOP", "missing"))
	assert.ErrorIs(t, err, redis.ErrNil)
	_, err = conn.Do("NOSUCHCOMMAND")
	assert.Error(t, err)

	cancel()
	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not stop in time.")
	}
}
