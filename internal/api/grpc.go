package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"limitboard/internal/domain"
	"limitboard/internal/limitup"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "limitboard.v1.LimitUp"

const (
	listDatesMethod = "/" + ServiceName + "/ListDates"
	classifyMethod  = "/" + ServiceName + "/Classify"
)

// LimitUpServer is the server API for the LimitUp service. Requests and
// replies use protobuf well-known types so no generated code is needed.
type LimitUpServer interface {
	// ListDates returns the selectable trading dates, oldest first.
	ListDates(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// Classify runs the analysis for the "date" field of the request, or
	// the latest trading date when it is absent.
	Classify(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// LimitUpServiceDesc describes the LimitUp service for grpc.Server.
var LimitUpServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LimitUpServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDates", Handler: listDatesHandler},
		{MethodName: "Classify", Handler: classifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "limitboard/v1/limitup.proto",
}

func listDatesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LimitUpServer).ListDates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listDatesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LimitUpServer).ListDates(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func classifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LimitUpServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: classifyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LimitUpServer).Classify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Analyzer is the subset of the limit-up analyzer the service needs.
type Analyzer interface {
	Dates(ctx context.Context) ([]domain.TradingDate, error)
	LatestDate(ctx context.Context) (domain.TradingDate, error)
	Run(ctx context.Context, date string, onProgress func(limitup.Progress)) (*limitup.Result, error)
}

// Service implements LimitUpServer on top of an Analyzer.
type Service struct {
	analyzer Analyzer
	log      *slog.Logger
}

// NewService creates a LimitUp service backed by analyzer.
func NewService(analyzer Analyzer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{analyzer: analyzer, log: log}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *Service) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&LimitUpServiceDesc, s)
}

// ListDates implements LimitUpServer.
func (s *Service) ListDates(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	dates, err := s.analyzer.Dates(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	values := make([]*structpb.Value, len(dates))
	for i, d := range dates {
		values[i] = structpb.NewStringValue(string(d))
	}
	return &structpb.ListValue{Values: values}, nil
}

// Classify implements LimitUpServer.
func (s *Service) Classify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	date := ""
	if v, ok := req.GetFields()["date"]; ok {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "date must be a string")
		}
		date = sv.StringValue
	}
	if date == "" {
		latest, err := s.analyzer.LatestDate(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		date = string(latest)
	}

	res, err := s.analyzer.Run(ctx, date, nil)
	if err != nil {
		s.log.Error("grpc classify", "date", date, "error", err)
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(resultFields(res))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding result: %v", err)
	}
	return out, nil
}

// resultFields flattens a result into structpb-compatible values. Bucket
// order is carried by "rows"; "counts" is keyed by category.
func resultFields(res *limitup.Result) map[string]any {
	rows := make([]any, 0, len(domain.Buckets))
	counts := make(map[string]any, len(domain.Buckets))
	for _, row := range res.Counts.Rows() {
		rows = append(rows, map[string]any{"category": row.Category, "count": row.Count})
		counts[row.Category] = row.Count
	}
	skipped := make([]any, 0, len(res.Skipped))
	for _, sk := range res.Skipped {
		skipped = append(skipped, map[string]any{
			"symbol": sk.Symbol,
			"name":   sk.Name,
			"kind":   string(sk.Kind),
			"reason": sk.Reason,
		})
	}
	failures := make(map[string]any, len(res.Failures))
	for k, n := range res.Failures {
		failures[string(k)] = n
	}
	return map[string]any{
		"date":       string(res.Date),
		"mode":       string(res.Mode),
		"qualifying": res.Qualifying,
		"classified": res.Classified(),
		"rows":       rows,
		"counts":     counts,
		"skipped":    skipped,
		"failures":   failures,
		"elapsedMs":  res.Elapsed.Milliseconds(),
	}
}

// toStatus maps run errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidDate), errors.Is(err, domain.ErrNotTradingDate):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrCalendarUnavailable), errors.Is(err, domain.ErrSnapshotUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// loggingInterceptor logs every unary call with its outcome and duration.
func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed", time.Since(start).Round(time.Millisecond))
		return resp, err
	}
}
