package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/protocol"
)

// MaxMessageSize bounds a single message in either direction.
const MaxMessageSize = 10 * 1024 * 1024

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("remote host unavailable")

// ClientOptions configure a Client.
type ClientOptions struct {
	// Compression is "" or "zstd".
	Compression string
	Logger      *zap.Logger
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// Client is the guest side of the remote terminal service, with a circuit
// breaker around unary calls.
type Client struct {
	conn     *grpc.ClientConn
	addr     string
	breaker  *resilience.Breaker
	callOpts []grpc.CallOption
	log      *zap.Logger
}

// Dial creates a client for the host at addr. The connection is established
// lazily on the first call.
func Dial(addr string, opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Pings only while streams are open; hosts reject more frequent ones.
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
			grpc.MaxCallSendMsgSize(MaxMessageSize),
		),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial remote host: %w", err)
	}

	callOpts := []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
	switch opts.Compression {
	case "":
	case CompressorName:
		callOpts = append(callOpts, grpc.UseCompressor(CompressorName))
	default:
		conn.Close()
		return nil, fmt.Errorf("unsupported compression %q", opts.Compression)
	}

	log := opts.Logger.With(zap.String("addr", addr))
	breaker := resilience.New("remote", resilience.Settings{
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// Trip if 5+ consecutive failures or 50% failure rate with 10+ requests
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
		},
		IsSuccessful: hostHealthy,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		conn:     conn,
		addr:     addr,
		breaker:  breaker,
		callOpts: callOpts,
		log:      log,
	}, nil
}

// hostHealthy reports whether err says nothing bad about the host itself.
// Rejections of a single request do not count against the breaker.
func hostHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch status.Code(err) {
	case codes.NotFound, codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists, codes.Canceled:
		return true
	}
	return false
}

// Addr is the host address.
func (c *Client) Addr() string { return c.addr }

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Close closes the connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	resp, err := resilience.Call(c.breaker, func() (*Resp, error) {
		out := new(Resp)
		if err := c.conn.Invoke(ctx, protocol.FullMethod(method), req, out, c.callOpts...); err != nil {
			return nil, err
		}
		return out, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, err
}

// OpenTerminal starts a terminal on the host.
func (c *Client) OpenTerminal(ctx context.Context, req *protocol.OpenTerminalRequest) (*protocol.OpenTerminalResponse, error) {
	return invoke[protocol.OpenTerminalResponse](ctx, c, protocol.MethodOpenTerminal, req)
}

// InputTerminal sends input bytes to a host terminal.
func (c *Client) InputTerminal(ctx context.Context, req *protocol.InputTerminalRequest) error {
	_, err := invoke[protocol.Ack](ctx, c, protocol.MethodInputTerminal, req)
	return err
}

// CloseTerminal releases a host terminal.
func (c *Client) CloseTerminal(ctx context.Context, req *protocol.CloseTerminalRequest) error {
	_, err := invoke[protocol.Ack](ctx, c, protocol.MethodCloseTerminal, req)
	return err
}

// SubscribeOutput streams a host terminal's output. The chunk channel closes
// after the exit chunk or on error; the error channel then holds the error,
// if any.
func (c *Client) SubscribeOutput(ctx context.Context, req *protocol.OutputTerminalRequest) (<-chan protocol.OutputChunk, <-chan error) {
	chunks := make(chan protocol.OutputChunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		stream, err := c.conn.NewStream(ctx, &outputStreamDesc, protocol.FullMethod(protocol.MethodOutputTerminal), c.callOpts...)
		if err != nil {
			errs <- fmt.Errorf("failed to create stream: %w", err)
			return
		}
		if err := stream.SendMsg(req); err != nil {
			errs <- fmt.Errorf("failed to send request: %w", err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			errs <- fmt.Errorf("failed to close send: %w", err)
			return
		}

		for {
			var chunk protocol.OutputChunk
			err := stream.RecvMsg(&chunk)
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("stream error: %w", err)
				return
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			if chunk.Exited {
				return
			}
		}
	}()

	return chunks, errs
}
