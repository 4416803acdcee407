// Package dispatch implements the single-consumer request protocol that
// fronts the indexer and migration controller: every request is a
// Request value carrying its own reply channel, read off one channel by
// one goroutine and handled serially. Exclusive access to the indexer
// is structural -- there is exactly one reader -- rather than enforced
// by a lock at this layer.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/nvandessel/annstore/internal/config"
	"github.com/nvandessel/annstore/internal/embed"
	"github.com/nvandessel/annstore/internal/index"
	"github.com/nvandessel/annstore/internal/migration"
)

// Kind names a request's operation.
type Kind string

const (
	KindAddDoc        Kind = "ADD_DOC"
	KindBatchAdd      Kind = "BATCH_ADD"
	KindSearch        Kind = "SEARCH"
	KindGetAll        Kind = "GET_ALL"
	KindClear         Kind = "CLEAR"
	KindConfigure     Kind = "CONFIGURE"
	KindMigrateStart  Kind = "MIGRATE_START"
	KindMigrateStatus Kind = "MIGRATE_STATUS"
	KindMigrateStop   Kind = "MIGRATE_STOP"
)

// ErrUnknownRequest is returned when a Request carries a Kind the
// dispatcher does not recognize.
var ErrUnknownRequest = errors.New("dispatch: unknown request kind")

// ErrBadPayload is returned when a Request's Payload does not match the
// type its Kind expects.
var ErrBadPayload = errors.New("dispatch: payload does not match request kind")

// AddDocPayload is the payload for KindAddDoc.
type AddDocPayload struct {
	Text     string
	Metadata map[string]any
}

// BatchAddPayload is the payload for KindBatchAdd.
type BatchAddPayload struct {
	Texts     []string
	Metadatas []map[string]any
}

// SearchPayload is the payload for KindSearch.
type SearchPayload struct {
	Query         string
	K             int
	UseBruteForce bool
}

// ConfigurePayload is the payload for KindConfigure: it describes the
// embedder to bind declaratively, rather than passing a live Embedder
// value, so a request can travel over a wire transport like stdio JSON.
type ConfigurePayload struct {
	Embedder config.Config
}

// MigrateStartPayload is the payload for KindMigrateStart.
type MigrateStartPayload struct {
	Target config.Config
}

// Request is one unit of work submitted to a Dispatcher. Reply must be
// buffered by at least 1 or read promptly by the sender.
type Request struct {
	Type    Kind
	Payload any
	Reply   chan Response
}

// Response is a Request's result.
type Response struct {
	Result any
	Err    error
}

// Dispatcher serializes all access to an Indexer and its migration
// Controller behind a single channel.
type Dispatcher struct {
	indexer   *index.Indexer
	migration *migration.Controller
	requests  chan Request
}

// New constructs a Dispatcher over ix and mc. Run must be started in its
// own goroutine before Send is called.
func New(ix *index.Indexer, mc *migration.Controller) *Dispatcher {
	return &Dispatcher{indexer: ix, migration: mc, requests: make(chan Request)}
}

// Run processes requests serially until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.requests:
			req.Reply <- d.handle(ctx, req)
		}
	}
}

// Send submits a request and blocks for its response, or until ctx is
// cancelled. Intended for in-process callers; cmd/annstore's serve
// command wraps this with line-delimited JSON framing over stdio.
func (d *Dispatcher) Send(ctx context.Context, kind Kind, payload any) Response {
	reply := make(chan Response, 1)
	req := Request{Type: kind, Payload: payload, Reply: reply}

	select {
	case d.requests <- req:
	case <-ctx.Done():
		return Response{Err: ctx.Err()}
	}

	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
		return Response{Err: ctx.Err()}
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) Response {
	switch req.Type {
	case KindAddDoc:
		p, ok := req.Payload.(AddDocPayload)
		if !ok {
			return Response{Err: ErrBadPayload}
		}
		doc, err := d.indexer.AddDocument(ctx, p.Text, p.Metadata)
		return Response{Result: doc, Err: err}

	case KindBatchAdd:
		p, ok := req.Payload.(BatchAddPayload)
		if !ok {
			return Response{Err: ErrBadPayload}
		}
		docs, err := d.indexer.AddDocuments(ctx, p.Texts, p.Metadatas)
		return Response{Result: docs, Err: err}

	case KindSearch:
		p, ok := req.Payload.(SearchPayload)
		if !ok {
			return Response{Err: ErrBadPayload}
		}
		hits, err := d.indexer.Search(ctx, p.Query, p.K, p.UseBruteForce)
		return Response{Result: hits, Err: err}

	case KindGetAll:
		docs, err := d.indexer.GetAllDocuments(ctx)
		return Response{Result: docs, Err: err}

	case KindClear:
		return Response{Err: d.indexer.Clear(ctx)}

	case KindConfigure:
		p, ok := req.Payload.(ConfigurePayload)
		if !ok {
			return Response{Err: ErrBadPayload}
		}
		e, err := embed.NewFromConfig(p.Embedder)
		if err != nil {
			return Response{Err: fmt.Errorf("dispatch: configure: %w", err)}
		}
		d.indexer.SetEmbedder(e)
		return Response{}

	case KindMigrateStart:
		p, ok := req.Payload.(MigrateStartPayload)
		if !ok {
			return Response{Err: ErrBadPayload}
		}
		e, err := embed.NewFromConfig(p.Target)
		if err != nil {
			return Response{Err: fmt.Errorf("dispatch: migrate_start: %w", err)}
		}
		return Response{Err: d.migration.Start(ctx, e)}

	case KindMigrateStatus:
		return Response{Result: d.migration.Status()}

	case KindMigrateStop:
		d.migration.Stop()
		return Response{}

	default:
		return Response{Err: ErrUnknownRequest}
	}
}
