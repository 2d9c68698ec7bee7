package provider

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/newswire-labs/selflearn-controller/internal/feedback"
)

// #endregion

// #region codec

// codecName is the gRPC content-subtype the provider speaks. The
// provider side registers the same codec, so no generated stubs are
// needed on either end.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// #endregion

// #region messages

// GenerateRequest asks the provider to produce one brief.
type GenerateRequest struct {
	ContentID      string   `json:"content_id"`
	Tier           string   `json:"tier"`
	Locale         string   `json:"locale"`
	PromptVariant  string   `json:"prompt_variant"`
	PromptTemplate string   `json:"prompt_template"`
	Sources        []string `json:"sources,omitempty"`
}

// Usage is the provider's self-reported resource consumption.
type Usage struct {
	InputUnits  int     `json:"input_units"`
	OutputUnits int     `json:"output_units"`
	CostEUR     float64 `json:"cost_eur"`
}

// GenerateResponse is the provider's structured output for one brief.
type GenerateResponse struct {
	Headline   string   `json:"headline"`
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points,omitempty"`
	References []string `json:"references,omitempty"`
	Usage      Usage    `json:"usage"`
}

// Cost converts the provider's usage report to the event-log cost form.
func (u Usage) Cost() feedback.Cost {
	return feedback.Cost{
		EUR:         u.CostEUR,
		InputUnits:  u.InputUnits,
		OutputUnits: u.OutputUnits,
	}
}

// #endregion

// #region client

const (
	generateMethod = "/selflearn.Provider/Generate"
	defaultTimeout = 60 * time.Second
)

// invoker is the slice of grpc.ClientConn the client needs; tests
// substitute a fake.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Client is a thin gRPC client for the generation provider.
type Client struct {
	conn *grpc.ClientConn
	inv  invoker
}

// NewClient connects to the provider at addr over plaintext gRPC using
// the JSON codec.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial provider: %w", err)
	}
	return &Client{conn: conn, inv: conn}, nil
}

// NewClientWithInvoker builds a Client over a custom transport, for tests.
func NewClientWithInvoker(inv invoker) *Client {
	return &Client{inv: inv}
}

// Generate runs one generation call. A deadline is applied when the
// caller's context has none.
func (c *Client) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	resp := &GenerateResponse{}
	if err := c.inv.Invoke(ctx, generateMethod, req, resp); err != nil {
		return nil, fmt.Errorf("generate %s: %w", req.ContentID, err)
	}
	return resp, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// #endregion
