package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"limitboard/internal/domain"
)

// Classification is the decoded reply of Classify.
type Classification struct {
	Date       domain.TradingDate         `json:"date"`
	Mode       string                     `json:"mode"`
	Qualifying int                        `json:"qualifying"`
	Classified int                        `json:"classified"`
	Counts     domain.BucketCounts        `json:"counts"`
	Failures   map[domain.FailureKind]int `json:"failures"`
	ElapsedMs  int64                      `json:"elapsedMs"`
}

// Client calls a LimitUp gRPC server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client targeting addr over an insecure connection.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Dates returns the server's selectable trading dates.
func (c *Client) Dates(ctx context.Context) ([]domain.TradingDate, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, listDatesMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	dates := make([]domain.TradingDate, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		dates = append(dates, domain.TradingDate(v.GetStringValue()))
	}
	return dates, nil
}

// Classify runs the analysis for date on the server. An empty date selects
// the latest trading date.
func (c *Client) Classify(ctx context.Context, date string) (*Classification, error) {
	fields := map[string]any{}
	if date != "" {
		fields["date"] = date
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, classifyMethod, in, out); err != nil {
		return nil, err
	}
	return decodeClassification(out)
}

func decodeClassification(s *structpb.Struct) (*Classification, error) {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("encoding reply: %w", err)
	}
	var c Classification
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	return &c, nil
}
