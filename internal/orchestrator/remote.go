package orchestrator

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/agentcore/agentcore/internal/rpcjson" // registers the "json" codec
)

// CoordinateRequest is the wire request for the Coordinate RPC.
type CoordinateRequest struct {
	Decisions []Decision
}

// CoordinateResponse is the wire response for the Coordinate RPC. Error is
// populated instead of using a gRPC status when Coordinate itself rejected
// the request (e.g. ErrNoDecisions), so a JSON client sees a structured
// reason without needing gRPC status parsing.
type CoordinateResponse struct {
	Result Coordinated
	Error  string
}

// orchestratorServer is the interface grpc.ServiceDesc dispatches to. It
// exists so RegisterOrchestratorServer can accept any implementation,
// mirroring the generated-code pattern without a .proto/protoc step.
type orchestratorServer interface {
	Coordinate(context.Context, *CoordinateRequest) (*CoordinateResponse, error)
}

var orchestratorServiceDesc = grpc.ServiceDesc{
	ServiceName: "agentcore.orchestrator.v1.Orchestrator",
	HandlerType: (*orchestratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Coordinate",
			Handler:    coordinateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/orchestrator/remote.go",
}

func coordinateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CoordinateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orchestratorServer).Coordinate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/agentcore.orchestrator.v1.Orchestrator/Coordinate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(orchestratorServer).Coordinate(ctx, req.(*CoordinateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterOrchestratorServer wires srv into a *grpc.Server under the
// Orchestrator service descriptor.
func RegisterOrchestratorServer(s *grpc.Server, srv orchestratorServer) {
	s.RegisterService(&orchestratorServiceDesc, srv)
}

// RemoteService exposes Coordinate over gRPC, auditing every request
// through an Integrity chain before responding.
type RemoteService struct {
	integrity *Integrity
	log       *zap.Logger
}

// NewRemoteService builds a RemoteService that chains every coordinated
// decision through integrity.
func NewRemoteService(integrity *Integrity, log *zap.Logger) *RemoteService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteService{integrity: integrity, log: log}
}

// Coordinate implements orchestratorServer.
func (s *RemoteService) Coordinate(ctx context.Context, req *CoordinateRequest) (*CoordinateResponse, error) {
	result, err := Coordinate(req.Decisions)
	if err != nil {
		return &CoordinateResponse{Error: err.Error()}, nil
	}

	if s.integrity != nil {
		if _, auditErr := s.integrity.Record(result, time.Now()); auditErr != nil {
			s.log.Warn("remote coordinate: integrity rejected result", zap.Error(auditErr))
			return &CoordinateResponse{Error: auditErr.Error()}, nil
		}
	}

	return &CoordinateResponse{Result: result}, nil
}

// Serve starts a gRPC listener for RemoteService on addr, blocking until
// ctx is cancelled.
func (s *RemoteService) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("orchestrator: listen %s: %w", addr, err)
	}

	grpcSrv := grpc.NewServer(
		grpc.MaxRecvMsgSize(64*1024),
		grpc.MaxSendMsgSize(64*1024),
	)
	RegisterOrchestratorServer(grpcSrv, s)

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		grpcSrv.GracefulStop()
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("orchestrator grpc serve: %w", err)
		}
		return nil
	}
}
