package httpapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"itdesk.org/internal/obs"
)

// HealthServer answers grpc.health.v1 checks from the same probe as /readyz.
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer

	readiness ReadyProbe
	log       *logrus.Logger
}

func NewHealthServer(rp ReadyProbe, log *logrus.Logger) *HealthServer {
	if log == nil {
		log = obs.Logger()
	}
	return &HealthServer{readiness: rp, log: log}
}

// Check accepts the empty service name and serviceName; anything else is NotFound.
func (s *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" && name != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
	}
	if err := s.readiness.Check(ctx); err != nil {
		s.log.WithError(err).Warn("grpc health check failed")
		return &grpc_health_v1.HealthCheckResponse{
			Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		}, nil
	}
	return &grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVING,
	}, nil
}

// NewGRPCServer builds the side-channel gRPC server carrying health and reflection.
func NewGRPCServer(rp ReadyProbe, log *logrus.Logger) *grpc.Server {
	hs := NewHealthServer(rp, log)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(hs.log)))
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv
}

func unaryLogger(log *logrus.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.WithFields(logrus.Fields{
			"grpc_method": info.FullMethod,
			"grpc_code":   status.Code(err).String(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("grpc request")
		return resp, err
	}
}
