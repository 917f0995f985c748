// Package rpc exposes the dashboard's readiness over the standard gRPC
// health protocol and provides a client-side heartbeat against it.
package rpc

import (
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Service is the health service name reported for the classifier.
const Service = "cotton.Classifier"

type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer starts out NOT_SERVING until SetServing(true).
func NewServer() *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.SetServing(false)
	return s
}

func (s *Server) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
	logrus.WithField("service", Service).
		WithField("status", status.String()).
		Info("health status")
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	logrus.WithField("addr", lis.Addr().String()).Info("starting grpc health server")
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.SetServing(false)
	s.grpc.GracefulStop()
}
