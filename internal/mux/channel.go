package mux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/framemux/internal/protocol/codec"
	"github.com/danmuck/framemux/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is the dispatch cycle state machine position.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSending
	StateAwaitingReply
	StateReconciling
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateReconciling:
		return "reconciling"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Channel is the complete state for one (Req, Resp) pair: request table,
// sent-set and connection.
type Channel[Req, Resp any] struct {
	cfg       Config
	table     *Table[Req, Resp]
	reqCodec  codec.Codec[Req]
	respCodec codec.Codec[Resp]
	conn      *Conn

	cycleMu sync.Mutex
	sent    map[uuid.UUID]struct{}
	state   atomic.Int32
}

func NewChannel[Req, Resp any](cfg Config, reqCodec codec.Codec[Req], respCodec codec.Codec[Resp]) (*Channel[Req, Resp], error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if reqCodec == nil || respCodec == nil {
		return nil, fmt.Errorf("mux: channel %q requires request and response codecs", cfg.Name)
	}
	cfg = cfg.WithDefaults()
	return &Channel[Req, Resp]{
		cfg:       cfg,
		table:     NewTable[Req, Resp](codec.EqualFunc(reqCodec)),
		reqCodec:  reqCodec,
		respCodec: respCodec,
		conn:      NewConn(cfg),
		sent:      make(map[uuid.UUID]struct{}),
	}, nil
}

func (c *Channel[Req, Resp]) Name() string {
	return c.cfg.Name
}

func (c *Channel[Req, Resp]) Table() *Table[Req, Resp] {
	return c.table
}

func (c *Channel[Req, Resp]) Send(req Req) uuid.UUID {
	return c.table.Send(req)
}

func (c *Channel[Req, Resp]) Read(id uuid.UUID) (Resp, bool) {
	return c.table.Read(id)
}

func (c *Channel[Req, Resp]) Take(id uuid.UUID) (Resp, bool) {
	return c.table.Take(id)
}

func (c *Channel[Req, Resp]) Status(id uuid.UUID) Status {
	return c.table.Status(id)
}

// Lookup reports the status of id and, once resolved, its response.
func (c *Channel[Req, Resp]) Lookup(id uuid.UUID) (Status, any) {
	if resp, ok := c.table.Read(id); ok {
		return StatusResolved, resp
	}
	return c.table.Status(id), nil
}

// Cancel drops a pending request so later cycles stop sending it. It reports
// false when id was not pending.
func (c *Channel[Req, Resp]) Cancel(id uuid.UUID) bool {
	return c.table.Cancel(id)
}

func (c *Channel[Req, Resp]) Counts() (pending, resolved int) {
	return c.table.Counts()
}

func (c *Channel[Req, Resp]) State() State {
	return State(c.state.Load())
}

func (c *Channel[Req, Resp]) Connected() bool {
	return c.conn.Connected()
}

// SentIDs returns the sent-set in ascending order. It waits for a running
// cycle to finish.
func (c *Channel[Req, Resp]) SentIDs() []uuid.UUID {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	out := make([]uuid.UUID, 0, len(c.sent))
	for id := range c.sent {
		out = append(out, id)
	}
	SortIDs(out)
	return out
}

// Close tears down the connection and resets the sent-set.
func (c *Channel[Req, Resp]) Close() error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()
	c.sent = make(map[uuid.UUID]struct{})
	c.setState(StateIdle)
	return c.conn.Teardown()
}

func (c *Channel[Req, Resp]) setState(s State) {
	c.state.Store(int32(s))
}

// RunCycle performs one dispatch pass: send every pending request not yet in
// the sent-set, one exchange at a time in ascending identifier order, and
// resolve each reply. Cycles never overlap; a concurrent call returns
// ErrCycleInFlight.
//
// Requests whose payload cannot be encoded are left pending and reported as a
// *SkippedError without failing the cycle. No connection is made unless at
// least one request encodes. Any I/O or decode failure tears down the
// connection and resets the sent-set so unresolved requests are resent by a
// later cycle.
func (c *Channel[Req, Resp]) RunCycle(ctx context.Context) error {
	if !c.cycleMu.TryLock() {
		return ErrCycleInFlight
	}
	defer c.cycleMu.Unlock()

	fresh := c.diff()
	if len(fresh) == 0 {
		c.setState(StateIdle)
		return nil
	}

	batch, skippedIDs, skipped := c.encodeAll(fresh)
	if len(batch) == 0 {
		c.setState(StateIdle)
		RecordCycle(c.cfg.Name, StateIdle)
		return skippedErr(skippedIDs, skipped)
	}

	c.setState(StateConnecting)
	conn, err := c.conn.EnsureConnected(ctx)
	if err != nil {
		return c.fail(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	for _, out := range batch {
		if _, ok := c.table.Pending(out.id); !ok {
			continue
		}
		start := time.Now()
		resp, err := c.exchange(ctx, conn, out.id, out.wire)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = fmt.Errorf("%w: %w", err, ctxErr)
			}
			return c.fail(err)
		}

		c.setState(StateReconciling)
		if err := c.table.Resolve(out.id, resp); err != nil {
			// cancelled while the exchange was in flight
			log.Debug().Str("channel", c.cfg.Name).Str("id", out.id.String()).Err(err).Msg("mux.Channel reply discarded")
		}
		delete(c.sent, out.id)
		RecordExchange(c.cfg.Name, time.Since(start))
	}

	c.setState(StateIdle)
	RecordCycle(c.cfg.Name, StateIdle)
	pending, _ := c.table.Counts()
	RecordPending(c.cfg.Name, pending)
	return skippedErr(skippedIDs, skipped)
}

type outbound struct {
	id   uuid.UUID
	wire []byte
}

// encodeAll builds the wire frames for ids, setting aside the ones that do
// not encode.
func (c *Channel[Req, Resp]) encodeAll(ids []uuid.UUID) ([]outbound, []uuid.UUID, []error) {
	batch := make([]outbound, 0, len(ids))
	var skippedIDs []uuid.UUID
	var skipped []error
	for _, id := range ids {
		req, ok := c.table.Pending(id)
		if !ok {
			continue
		}
		wire, err := c.encodeRequest(req)
		if err != nil {
			log.Warn().Str("channel", c.cfg.Name).Str("id", id.String()).Err(err).Msg("mux.Channel skip request")
			skippedIDs = append(skippedIDs, id)
			skipped = append(skipped, fmt.Errorf("request %s: %w", id, err))
			continue
		}
		batch = append(batch, outbound{id: id, wire: wire})
	}
	return batch, skippedIDs, skipped
}

func (c *Channel[Req, Resp]) diff() []uuid.UUID {
	pending := c.table.PendingIDs()
	fresh := pending[:0]
	for _, id := range pending {
		if _, ok := c.sent[id]; ok {
			continue
		}
		fresh = append(fresh, id)
	}
	return fresh
}

func (c *Channel[Req, Resp]) encodeRequest(req Req) ([]byte, error) {
	payload, err := c.reqCodec.Marshal(req)
	if err != nil {
		return nil, err
	}
	h, err := frame.NewHeader(frame.KindRequest, payload)
	if err != nil {
		return nil, err
	}
	return frame.EncodeFrame(h, payload)
}

// exchange writes one request frame and reads its positional reply.
func (c *Channel[Req, Resp]) exchange(ctx context.Context, conn net.Conn, id uuid.UUID, wire []byte) (Resp, error) {
	var zero Resp

	c.setState(StateSending)
	c.sent[id] = struct{}{}
	if err := c.conn.setWriteDeadline(ctx, conn); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if _, err := conn.Write(wire); err != nil {
		return zero, fmt.Errorf("%w: write: %w", ErrConnection, err)
	}
	RecordFrame(c.cfg.Name, frame.KindRequest.String())

	c.setState(StateAwaitingReply)
	if err := c.conn.setReadDeadline(ctx, conn); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	r := c.conn.Reader()
	if r == nil {
		return zero, fmt.Errorf("%w: connection closed", ErrConnection)
	}
	h, err := frame.ReadHeader(r)
	if err != nil {
		return zero, classifyReadErr(err)
	}
	if err := frame.ExpectKind(h, frame.KindResponse); err != nil {
		return zero, err
	}
	payload, err := frame.ReadPayload(r, h)
	if err != nil {
		return zero, classifyReadErr(err)
	}
	RecordFrame(c.cfg.Name, frame.KindResponse.String())

	resp, err := c.respCodec.Unmarshal(payload)
	if err != nil {
		return zero, err
	}
	return resp, nil
}

// classifyReadErr keeps framing errors as-is and tags transport errors.
func classifyReadErr(err error) error {
	if errors.Is(err, frame.ErrMalformedHeader) || errors.Is(err, frame.ErrProtocolViolation) {
		return err
	}
	return fmt.Errorf("%w: read: %w", ErrConnection, err)
}

func (c *Channel[Req, Resp]) fail(err error) error {
	c.setState(StateFailed)
	RecordCycle(c.cfg.Name, StateFailed)
	if tdErr := c.conn.Teardown(); tdErr != nil {
		log.Debug().Str("channel", c.cfg.Name).Err(tdErr).Msg("mux.Channel teardown")
	}
	c.sent = make(map[uuid.UUID]struct{})
	pending, _ := c.table.Counts()
	RecordPending(c.cfg.Name, pending)
	log.Warn().Str("channel", c.cfg.Name).Str("addr", c.cfg.Address).Err(err).Msg("mux.Channel cycle failed")
	return err
}
