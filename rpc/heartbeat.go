package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var ErrNotServing = errors.New("service not serving")

// HeartBeat polls a health service in the background. Failures are
// collected with Check, which never blocks.
type HeartBeat struct {
	Beat     chan error
	Done     chan struct{}
	Client   healthpb.HealthClient
	Service  string
	Interval time.Duration

	closeOnce sync.Once
}

func NewHeartBeat(client healthpb.HealthClient, service string, interval time.Duration) *HeartBeat {
	h := new(HeartBeat)
	h.Beat = make(chan error, 1)
	h.Done = make(chan struct{})
	h.Client = client
	h.Service = service
	h.Interval = interval
	return h
}

func (h *HeartBeat) Start() {
	go func() {
		ticker := time.NewTicker(h.Interval)
		defer ticker.Stop()
		for {
			h.beat()
			select {
			case <-h.Done:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (h *HeartBeat) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), h.Interval)
	defer cancel()

	logrus.WithField("service", h.Service).Debug("sending health check")
	resp, err := h.Client.Check(ctx, &healthpb.HealthCheckRequest{Service: h.Service})
	if err == nil && resp.Status != healthpb.HealthCheckResponse_SERVING {
		err = fmt.Errorf("%w: %s is %s", ErrNotServing, h.Service, resp.Status)
	}
	if err == nil {
		return
	}
	select {
	case h.Beat <- err:
	default:
		// a failure is already pending
	}
}

// Check returns the oldest unreported failure, or nil.
func (h *HeartBeat) Check() error {
	select {
	case err := <-h.Beat:
		return err
	default:
		return nil
	}
}

// Close stops the polling goroutine. It is safe to call more than once.
func (h *HeartBeat) Close() {
	h.closeOnce.Do(func() { close(h.Done) })
}
