package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/annstore/internal/dispatch"
)

// wireRequest is the line-delimited JSON framing for a dispatch.Request
// read from stdin: one JSON object per line, Type naming a dispatch.Kind
// and Payload holding that kind's untyped JSON payload.
type wireRequest struct {
	Type    dispatch.Kind   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch loop over line-delimited JSON on stdio",
		Long: `serve reads one JSON request per line from stdin and writes one
JSON response per line to stdout. Every request is processed serially
by a single dispatch goroutine, so exclusive access to the index is
structural rather than lock-based (see internal/dispatch).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			p, err := openProject(ctx, root)
			if err != nil {
				return err
			}
			defer p.Close()

			d := dispatch.New(p.indexer, p.migration)
			go d.Run(ctx)

			return runServeLoop(ctx, d, os.Stdin, os.Stdout)
		},
	}
}

func runServeLoop(ctx context.Context, d *dispatch.Dispatcher, in *os.File, out *os.File) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req wireRequest
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(wireResponse{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		payload, err := decodePayload(req.Type, req.Payload)
		if err != nil {
			enc.Encode(wireResponse{Error: err.Error()})
			continue
		}

		resp := d.Send(ctx, req.Type, payload)
		if resp.Err != nil {
			enc.Encode(wireResponse{Error: resp.Err.Error()})
			continue
		}
		enc.Encode(wireResponse{Result: resp.Result})
	}
	return scanner.Err()
}

// decodePayload unmarshals the wire payload into the concrete struct
// type the dispatcher expects for req's Kind. GET_ALL, CLEAR, and
// MIGRATE_STATUS/MIGRATE_STOP carry no payload.
func decodePayload(kind dispatch.Kind, raw json.RawMessage) (any, error) {
	switch kind {
	case dispatch.KindAddDoc:
		var p dispatch.AddDocPayload
		return p, unmarshalIfPresent(raw, &p)
	case dispatch.KindBatchAdd:
		var p dispatch.BatchAddPayload
		return p, unmarshalIfPresent(raw, &p)
	case dispatch.KindSearch:
		var p dispatch.SearchPayload
		return p, unmarshalIfPresent(raw, &p)
	case dispatch.KindConfigure:
		var p dispatch.ConfigurePayload
		return p, unmarshalIfPresent(raw, &p)
	case dispatch.KindMigrateStart:
		var p dispatch.MigrateStartPayload
		return p, unmarshalIfPresent(raw, &p)
	case dispatch.KindGetAll, dispatch.KindClear, dispatch.KindMigrateStatus, dispatch.KindMigrateStop:
		return nil, nil
	default:
		return nil, dispatch.ErrUnknownRequest
	}
}

func unmarshalIfPresent(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
