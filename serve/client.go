package serve

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/creditrisk/graphqa/queue"
)

// Client calls a remote QuestionService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a Client over an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Ask sends question and decodes the reply. A positive timeout is forwarded
// to the server as the question's own deadline.
func (c *Client) Ask(ctx context.Context, question string, timeout time.Duration, opts ...grpc.CallOption) (*queue.Reply, error) {
	fields := map[string]any{"question": question}
	if timeout > 0 {
		fields["timeout_ms"] = float64(timeout.Milliseconds())
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AskMethod, req, out, opts...); err != nil {
		return nil, err
	}

	reply, err := structToReply(out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	return reply, nil
}
