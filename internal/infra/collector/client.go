// Package collector submits signed snapshots to the local collector over gRPC.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vietddude/snapshotter/internal/core/domain"
	"github.com/vietddude/snapshotter/internal/indexing/recovery"
)

const submitMethod = "/submission.Submission/SubmitSnapshot"

// ErrStreamTerminated is returned when the collector tears the stream down after
// the submission was written. The collector already has the message.
var ErrStreamTerminated = errors.New("collector stream terminated")

var submitStreamDesc = grpc.StreamDesc{
	StreamName:    "SubmitSnapshot",
	ClientStreams: true,
}

// Client is a one-shot submission client. Each Send opens its own stream.
type Client struct {
	conn        *grpc.ClientConn
	sendTimeout time.Duration
	policy      recovery.Policy
}

// Dial creates a lazily connecting client for addr.
func Dial(addr string, dialTimeout, sendTimeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: dialTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collector client: %w", err)
	}
	return NewClient(conn, sendTimeout), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn, sendTimeout time.Duration) *Client {
	policy := recovery.SendPolicy()
	policy.Classifier = classify
	return &Client{
		conn:        conn,
		sendTimeout: sendTimeout,
		policy:      policy,
	}
}

// Send writes one submission and closes the stream, retrying transient failures.
// ErrStreamTerminated is returned as is and should be treated as delivered.
func (c *Client) Send(ctx context.Context, sub *domain.SnapshotSubmission) error {
	return recovery.Do(ctx, c.policy, "collector_send", func(ctx context.Context) error {
		return c.send(ctx, sub)
	})
}

func (c *Client) send(ctx context.Context, sub *domain.SnapshotSubmission) error {
	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}

	stream, err := c.conn.NewStream(ctx, &submitStreamDesc, submitMethod, grpc.ForceCodec(Codec{}))
	if err != nil {
		return fmt.Errorf("failed to open submission stream: %w", err)
	}

	if err := stream.SendMsg(sub); err != nil {
		// io.EOF means the server ended the stream, the real status comes from RecvMsg
		if !errors.Is(err, io.EOF) {
			return terminatedOr(err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return terminatedOr(err)
	}

	var resp SubmissionResponse
	if err := stream.RecvMsg(&resp); err != nil {
		return terminatedOr(err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func terminatedOr(err error) error {
	if isStreamTerminated(err) {
		return fmt.Errorf("%w: %v", ErrStreamTerminated, err)
	}
	return err
}

// isStreamTerminated detects a stream reset after the request was accepted.
func isStreamTerminated(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, ErrStreamTerminated) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(st.Message())
	switch st.Code() {
	case codes.Internal, codes.Unavailable, codes.Canceled:
		return strings.Contains(msg, "rst_stream") || strings.Contains(msg, "stream terminated")
	}
	return false
}

func classify(err error) recovery.FailureCategory {
	if errors.Is(err, ErrStreamTerminated) {
		return recovery.CategoryPermanent
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unimplemented, codes.PermissionDenied, codes.Unauthenticated:
		return recovery.CategoryPermanent
	}
	return recovery.CategoryTransient
}
