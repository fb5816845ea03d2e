package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/rpc"
)

// callTimeout bounds a remote call when ctx carries no deadline. It leaves
// room for the server's own extraction timeout.
const callTimeout = analyzer.DefaultTimeout + 5*time.Second

// Client connects to a tributeguard gRPC server.
type Client struct {
	conn *grpc.ClientConn
}

// New creates a gRPC client for addr. The connection is established lazily.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to moderation server: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Analyze sends a tribute to the remote analyzer. Errors wrap the same
// classes as a local Analyzer: InvalidArgument maps to ErrInvalidInput,
// everything else (including an unreachable server) to ErrExtractionFailure.
func (c *Client) Analyze(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	fields := map[string]any{"text": req.Text}
	if req.Policy != nil {
		fields["policy"] = *req.Policy
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return analyzer.Result{}, fmt.Errorf("%w: %v", analyzer.ErrInvalidInput, err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, rpc.AnalyzeMethod, in, out); err != nil {
		st := status.Convert(err)
		if st.Code() == codes.InvalidArgument {
			return analyzer.Result{}, fmt.Errorf("%w: %s", analyzer.ErrInvalidInput, st.Message())
		}
		return analyzer.Result{}, fmt.Errorf("%w: %s: %s", analyzer.ErrExtractionFailure, st.Code(), st.Message())
	}

	return decodeResult(out)
}

// DefaultPolicy returns the server's operator policy and its hash.
func (c *Client) DefaultPolicy(ctx context.Context) (string, string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, rpc.DefaultPolicyMethod, &structpb.Struct{}, out); err != nil {
		return "", "", err
	}
	f := out.GetFields()
	return f["policy"].GetStringValue(), f["hash"].GetStringValue(), nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func decodeResult(out *structpb.Struct) (analyzer.Result, error) {
	lv := out.GetFields()["flaggedContent"].GetListValue()
	if lv == nil {
		return analyzer.Result{}, fmt.Errorf("%w: response has no flaggedContent list", analyzer.ErrExtractionFailure)
	}
	spans := make([]string, 0, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return analyzer.Result{}, fmt.Errorf("%w: flaggedContent[%d] is not a string", analyzer.ErrExtractionFailure, i)
		}
		spans = append(spans, s.StringValue)
	}
	return analyzer.Result{FlaggedContent: spans}, nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, callTimeout)
}
