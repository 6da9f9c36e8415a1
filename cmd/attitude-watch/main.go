// Command attitude-watch streams every attitude the server computes and
// prints one line per result, or the raw JSON with -json.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/device-attitude/internal/api"
)

func main() {
	endpoint := flag.String("endpoint", "localhost:50061", "attitude gRPC endpoint (host:port)")
	sessionID := flag.String("session", "", "only show results from this session")
	asJSON := flag.Bool("json", false, "print each result as JSON")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		log.Fatalf("dial %s: %v", *endpoint, err)
	}
	defer func() { _ = conn.Close() }()

	if err := watch(ctx, api.NewClient(conn), *sessionID, *asJSON, os.Stdout); err != nil {
		log.Fatalf("watch: %v", err)
	}
}

// watch prints results until the stream ends or ctx is cancelled.
func watch(ctx context.Context, client *api.Client, sessionID string, asJSON bool, w io.Writer) error {
	filter, err := structpb.NewStruct(map[string]any{"session_id": sessionID})
	if err != nil {
		return err
	}
	stream, err := client.WatchAttitudes(ctx, filter)
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if asJSON {
			b, err := protojson.Marshal(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			continue
		}
		fmt.Fprintln(w, formatResult(msg))
	}
}

func formatResult(msg *structpb.Struct) string {
	f := msg.GetFields()
	line := fmt.Sprintf("#%-5.0f %-36s %-5s %-10s",
		f["sequence"].GetNumberValue(),
		f["session_id"].GetStringValue(),
		f["frame"].GetStringValue(),
		f["kind"].GetStringValue(),
	)
	if dir, err := api.DecodeVector(f["direction"]); err == nil {
		return line + fmt.Sprintf(" dir=(%+.6f, %+.6f, %+.6f)", dir.X, dir.Y, dir.Z)
	}
	q, err := api.DecodeQuaternion(f["q"])
	if err != nil {
		return line + " q=?"
	}
	return line + fmt.Sprintf(" q=(%+.6f, %+.6f, %+.6f, %+.6f) north=%.2f adj=%.2f",
		q.X, q.Y, q.Z, q.W,
		f["north_angle_deg"].GetNumberValue(),
		f["adjustment_deg"].GetNumberValue(),
	)
}
