package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sdeoras/cotton/rpc"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	host := flag.String("host", "0.0.0.0:7001", "grpc health host:port")
	service := flag.String("service", rpc.Service, "service to check, empty for the whole server")
	watch := flag.Duration("watch", 0, "keep checking at this interval instead of once")
	timeout := flag.Duration("timeout", 5*time.Second, "per-check timeout")
	flag.Parse()

	if !strings.Contains(*host, ":") {
		logrus.Fatal("--host needs a port number")
	}

	conn, err := grpc.Dial(*host, grpc.WithInsecure())
	if err != nil {
		logrus.Fatal(err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	if *watch <= 0 {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: *service})
		if err != nil {
			logrus.Fatal(err)
		}
		fmt.Println(resp.Status)
		if resp.Status != healthpb.HealthCheckResponse_SERVING {
			os.Exit(1)
		}
		return
	}

	logrus.WithField("host", *host).
		WithField("service", *service).
		Info("watching health")
	heartBeat := rpc.NewHeartBeat(client, *service, *watch)
	heartBeat.Start()
	defer heartBeat.Close()
	for range time.Tick(*watch) {
		if err := heartBeat.Check(); err != nil {
			logrus.Error(err)
			continue
		}
		logrus.Debug("healthy")
	}
}
