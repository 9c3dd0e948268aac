package grpc

import (
	"net"

	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	srv    *grpc.Server
	health *health.Server
}

func NewGrpc() *Server {
	server := &Server{
		srv:    grpc.NewServer(),
		health: health.NewServer(),
	}

	healthpb.RegisterHealthServer(server.srv, server.health)
	reflection.Register(server.srv)

	return server
}

// SetServing flips the health status reported for the relay service.
func (v *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	v.health.SetServingStatus("", status)
	v.health.SetServingStatus("meet.Relay", status)
}

func (v *Server) Listen() error {
	listener, err := net.Listen("tcp", viper.GetString("grpc_bind"))
	if err != nil {
		return err
	}

	return v.srv.Serve(listener)
}

func (v *Server) Stop() {
	v.SetServing(false)
	v.srv.GracefulStop()
}
