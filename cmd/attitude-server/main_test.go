package main

import (
	"context"
	"math"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/device-attitude/internal/api"
	"github.com/signalsfoundry/device-attitude/internal/config"
	"github.com/signalsfoundry/device-attitude/internal/logging"
)

func TestAttitudeServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.Server.GRPCAddr = lis.Addr().String()
	cfg.Server.MetricsAddr = ""
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.Logging.Level = "warn"

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	client := api.NewClient(conn)
	in, err := structpb.NewStruct(api.TimeUpdate(946728000000))
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	resp, err := client.TimeInfo(ctx, in)
	if err != nil {
		t.Fatalf("TimeInfo: %v", err)
	}
	if got := resp.GetFields()["jd"].GetNumberValue(); math.Abs(got-2451545) > 1e-9 {
		t.Fatalf("jd = %v, want 2451545", got)
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestGracefulStopForcesAfterTimeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	server := grpc.NewServer()
	go func() { _ = server.Serve(lis) }()

	done := make(chan struct{})
	go func() {
		gracefulStop(server, 10*time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("gracefulStop did not return")
	}
}
