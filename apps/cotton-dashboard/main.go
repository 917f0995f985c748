package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdeoras/cotton/advice"
	"github.com/sdeoras/cotton/config"
	"github.com/sdeoras/cotton/diagnosis"
	"github.com/sdeoras/cotton/model"
	"github.com/sdeoras/cotton/rpc"
	"github.com/sdeoras/cotton/session"
	"github.com/sdeoras/cotton/web"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		logrus.Fatal(err)
	}
	if err := cfg.Log.Setup(); err != nil {
		logrus.Fatal(err)
	}
	if err := run(cfg); err != nil {
		logrus.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	labels := advice.Classes()
	if cfg.Model.LabelsPath != "" {
		var err error
		if labels, err = model.ReadLabels(cfg.Model.LabelsPath); err != nil {
			return err
		}
	}
	if err := advice.Validate(labels); err != nil {
		return err
	}

	cerr := make(chan error, 2)

	// health goes up first so probes see NOT_SERVING while the model loads
	health := rpc.NewServer()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			cerr <- health.Serve(lis)
		}()
		defer health.Stop()
	}

	logrus.WithField("path", cfg.Model.Path).Info("loading model")
	t := time.Now()
	gateway, err := model.Load(model.Options{
		Path:     cfg.Model.Path,
		Tag:      cfg.Model.Tag,
		InputOp:  cfg.Model.InputOp,
		OutputOp: cfg.Model.OutputOp,
		Height:   cfg.Model.Height,
		Width:    cfg.Model.Width,
	})
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer gateway.Close()
	if n := gateway.Classes(); n >= 0 && n != len(labels) {
		return fmt.Errorf("model has %d outputs, %d labels configured", n, len(labels))
	}
	logrus.WithField("duration", time.Since(t)).Info("model loaded")

	height, width := gateway.InputSize()
	var pre diagnosis.Preprocessor
	switch cfg.Model.Preprocess {
	case "tf":
		tr, err := model.NewTransformer(height, width, float32(cfg.Model.Mean), float32(cfg.Model.Scale))
		if err != nil {
			return err
		}
		defer tr.Close()
		pre = tr
	default:
		r, err := diagnosis.NewResizer(height, width, float32(cfg.Model.Mean), float32(cfg.Model.Scale))
		if err != nil {
			return err
		}
		pre = r
	}
	logrus.WithFields(logrus.Fields{
		"preprocess": cfg.Model.Preprocess,
		"size":       fmt.Sprintf("%dx%d", height, width),
		"mean":       cfg.Model.Mean,
		"scale":      cfg.Model.Scale,
	}).Info("preprocessing configured")

	sessions := session.NewStore(cfg.Session.TTL, cfg.Session.MaxSessions)
	go sessions.RunCleaner(ctx, cfg.Session.SweepInterval)

	srv, err := web.New(web.Options{
		Pipeline:       &diagnosis.Pipeline{Pre: pre, Model: gateway, Labels: labels},
		Sessions:       sessions,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrus.Info("listening on ", cfg.HTTPAddr)
		cerr <- httpServer.Serve(netutil.LimitListener(lis, cfg.MaxConns))
	}()

	health.SetServing(true)
	logrus.Info("ctrl-c to exit")

	select {
	case err := <-cerr:
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	health.SetServing(false)
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return httpServer.Shutdown(shutdownCtx)
}
