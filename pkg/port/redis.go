package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/nobletooth/seqlist/pkg/scan"
	"github.com/nobletooth/seqlist/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var (
	address = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")

	redisCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_commands_total",
		Help: "Total number of handled Redis commands.",
	}, []string{"command", "status" /* ok | error */})
)

// ListHolder is the list storage the Redis port serves from.
type ListHolder interface {
	PushBack(key string, values ...string) int
	PushFront(key string, values ...string) int
	PopBack(key string) (string, error)
	PopFront(key string) (string, error)
	Insert(key string, index int, value string) int
	Remove(key string, index int) (string, error)
	Len(key string) int
	Contains(key, value string) bool
	Range(key string, start, stop int) []string
	Delete(keys ...string) int
	Keys() []string
}

var _ ListHolder = (*storage.ListStore)(nil)

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection if true.
	writeNil        bool     // Writes a nil value if true.
	err             *string  // Error to return if set.
	writeInt        *int     // Writes an integer value if set.
	writeBulk       *string  // Writes a bulk string if set.
	writeArray      []string // Writes an array of bulk strings if non-nil.
	writeString     string   // Writes a simple string otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisBool(b bool) redisOutput {
	if b {
		return writeRedisInt(1)
	}
	return writeRedisInt(0)
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisBulk(s string) redisOutput {
	return redisOutput{writeBulk: &s}
}

func writeRedisArray(values []string) redisOutput {
	if values == nil {
		values = []string{}
	}
	return redisOutput{writeArray: values}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

func wrongArity(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// parseIndex parses a list index argument.
func parseIndex(arg string) (int, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.New("value is not an integer or out of range")
	}
	return index, nil
}

// popOutput converts a pop result into a Redis reply; missing keys reply nil.
func popOutput(value string, err error) redisOutput {
	if errors.Is(err, storage.ErrKeyNotFound) {
		return writeRedisNil()
	} else if err != nil {
		return writeRedisError(err)
	}
	return writeRedisBulk(value)
}

type redisHandler struct {
	store ListHolder
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(store ListHolder) (*redisHandler, error) {
	if store == nil {
		return nil, errors.New("expected a non-nil storage")
	}
	return &redisHandler{store: store}, nil
}

// handle executes `cmd` and records its outcome.
func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	cmd.command = strings.ToUpper(cmd.command)
	output, known := rh.execute(cmd)
	label := cmd.command
	if !known {
		label = "UNKNOWN"
	}
	status := "ok"
	if output.err != nil {
		status = "error"
	}
	redisCommands.WithLabelValues(label, status).Inc()
	return output
}

// execute runs the given upper-cased command; returns false for unknown commands.
func (rh *redisHandler) execute(cmd redisCommand) (redisOutput, bool) {
	switch cmd.command {
	case "PING":
		if len(cmd.args) > 1 {
			return wrongArity(cmd.command), true
		} else if len(cmd.args) == 1 {
			return writeRedisBulk(cmd.args[0]), true
		}
		return writeRedisString("PONG"), true
	case "QUIT":
		return closeRedisConnection(RedisOk), true
	case "LPUSH", "RPUSH":
		if len(cmd.args) < 2 {
			return wrongArity(cmd.command), true
		}
		key, values := cmd.args[0], cmd.args[1:]
		if cmd.command == "LPUSH" {
			return writeRedisInt(rh.store.PushFront(key, values...)), true
		}
		return writeRedisInt(rh.store.PushBack(key, values...)), true
	case "LPOP":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command), true
		}
		return popOutput(rh.store.PopFront(cmd.args[0])), true
	case "RPOP":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command), true
		}
		return popOutput(rh.store.PopBack(cmd.args[0])), true
	case "LLEN":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command), true
		}
		return writeRedisInt(rh.store.Len(cmd.args[0])), true
	case "LRANGE":
		if len(cmd.args) != 3 {
			return wrongArity(cmd.command), true
		}
		start, err := parseIndex(cmd.args[1])
		if err != nil {
			return writeRedisError(err), true
		}
		stop, err := parseIndex(cmd.args[2])
		if err != nil {
			return writeRedisError(err), true
		}
		return writeRedisArray(rh.store.Range(cmd.args[0], start, stop)), true
	case "LINSERTAT": // LINSERTAT key index value
		if len(cmd.args) != 3 {
			return wrongArity(cmd.command), true
		}
		index, err := parseIndex(cmd.args[1])
		if err != nil {
			return writeRedisError(err), true
		}
		return writeRedisInt(rh.store.Insert(cmd.args[0], index, cmd.args[2])), true
	case "LREMAT": // LREMAT key index
		if len(cmd.args) != 2 {
			return wrongArity(cmd.command), true
		}
		index, err := parseIndex(cmd.args[1])
		if err != nil {
			return writeRedisError(err), true
		}
		return popOutput(rh.store.Remove(cmd.args[0], index)), true
	case "LCONTAINS": // LCONTAINS key value
		if len(cmd.args) != 2 {
			return wrongArity(cmd.command), true
		}
		return writeRedisBool(rh.store.Contains(cmd.args[0], cmd.args[1])), true
	case "DEL":
		if len(cmd.args) < 1 {
			return wrongArity(cmd.command), true
		}
		return writeRedisInt(rh.store.Delete(cmd.args...)), true
	case "KEYS":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command), true
		}
		return writeRedisArray(slices.Collect(scan.MatchGlob(cmd.args[0], slices.Values(rh.store.Keys())))), true
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", strings.ToLower(cmd.command))), false
	}
}

// writeOutput writes the handler `output` to the client connection.
func writeOutput(conn redcon.Conn, output redisOutput) {
	switch {
	case output.err != nil:
		conn.WriteError(*output.err)
	case output.writeNil:
		conn.WriteNull()
	case output.writeInt != nil:
		conn.WriteInt(*output.writeInt)
	case output.writeBulk != nil:
		conn.WriteBulkString(*output.writeBulk)
	case output.writeArray != nil:
		conn.WriteArray(len(output.writeArray))
		for _, value := range output.writeArray {
			conn.WriteBulkString(value)
		}
	default:
		conn.WriteString(output.writeString)
	}
}

// RunRedisServer starts a Redis protocol server on --address that serves lists from the provided store.
// It blocks until `ctx` is cancelled or the server fails.
func RunRedisServer(ctx context.Context, store ListHolder) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}
	return serveRedis(ctx, store, *address, func(addr net.Addr) {
		slog.Info("Redis server is listening.", "address", addr.String())
	})
}

// serveRedis listens on `laddr`, reports the bound address via `onListen` and serves until `ctx` is done.
func serveRedis(ctx context.Context, store ListHolder, laddr string, onListen func(net.Addr)) error {
	redisHandler, err := newRedisHandler(store)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, laddr,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand.
			command := redisCommand{command: string(cmd.Args[0]), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			output := redisHandler.handle(command)
			writeOutput(conn, output)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			return true // Accept all connections.
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	listenSignal := make(chan error, 1)
	serverErrSignal := make(chan error, 1)
	go func() {
		serverErrSignal <- redisServer.ListenServeAndSignal(listenSignal)
	}()
	if err := <-listenSignal; err != nil {
		return fmt.Errorf("failed to listen on %s: %w", laddr, err)
	}
	onListen(redisServer.Addr())

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close redis server: %w", err)
		}
	case err := <-serverErrSignal:
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
