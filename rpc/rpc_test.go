package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer()
	go s.Serve(lis)

	conn, err := grpc.Dial(lis.Addr().String(), grpc.WithInsecure())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		s.Stop()
	})
	return s, healthpb.NewHealthClient(conn)
}

func status(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatal(err)
	}
	return resp.Status
}

func TestServingTransitions(t *testing.T) {
	s, c := startServer(t)
	for _, svc := range []string{"", Service} {
		if got := status(t, c, svc); got != healthpb.HealthCheckResponse_NOT_SERVING {
			t.Fatalf("%q before load: %s", svc, got)
		}
	}
	s.SetServing(true)
	for _, svc := range []string{"", Service} {
		if got := status(t, c, svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("%q after load: %s", svc, got)
		}
	}
}

func waitBeat(h *HeartBeat) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := h.Check(); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func TestHeartBeatReportsNotServing(t *testing.T) {
	_, c := startServer(t)
	h := NewHeartBeat(c, Service, 50*time.Millisecond)
	h.Start()
	defer h.Close()

	if err := waitBeat(h); !errors.Is(err, ErrNotServing) {
		t.Fatalf("got %v, want ErrNotServing", err)
	}
}

func TestHeartBeatQuietWhenServing(t *testing.T) {
	s, c := startServer(t)
	s.SetServing(true)
	h := NewHeartBeat(c, Service, 20*time.Millisecond)
	h.Start()
	defer h.Close()

	time.Sleep(200 * time.Millisecond)
	if err := h.Check(); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
}

func TestHeartBeatCloseTwice(t *testing.T) {
	_, c := startServer(t)
	h := NewHeartBeat(c, Service, 20*time.Millisecond)
	h.Start()
	h.Close()
	h.Close()

	select {
	case <-h.Done:
	default:
		t.Fatal("Done not closed")
	}
}
