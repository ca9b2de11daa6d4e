// Package flow drives production orders through a line: every piece
// visits the posts of the route in order, waits for its detection, holds
// the post exclusively while it is processed and consumes one unit of
// the post's stock.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultLowStockRatio = 0.20
	DefaultFallbackTU    = 30 * time.Second
)

type Config struct {
	LineID           string
	Route            []string
	Posts            []Post
	TransitTime      time.Duration
	StrictSequential bool
	FallbackTU       time.Duration
	LowStockRatio    float64
	Slice            time.Duration
	AbortOnError     bool
	LogFunc          LogFunc
}

type postState struct {
	Post
	configured bool
	gate       chan struct{}
	processed  int
	lowFired   bool
	outFired   bool
}

// Orchestrator runs one order at a time over a fixed route.
type Orchestrator struct {
	cfg     Config
	route   []string
	emitter Emitter
	logFn   LogFunc
	pauser  Pauser

	mu       sync.Mutex
	posts    map[string]*postState
	pieces   map[int]PieceStatus
	finished int
	running  bool
}

func New(cfg Config, emitter Emitter) (*Orchestrator, error) {
	route := NewRoute(cfg.Route)
	if len(route) == 0 {
		return nil, ErrEmptyRoute
	}
	if cfg.FallbackTU <= 0 {
		cfg.FallbackTU = DefaultFallbackTU
	}
	if cfg.LowStockRatio <= 0 {
		cfg.LowStockRatio = DefaultLowStockRatio
	}
	if cfg.Slice <= 0 {
		cfg.Slice = DefaultSlice
	}
	if cfg.TransitTime < 0 {
		cfg.TransitTime = 0
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	logFn := cfg.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}

	byCode := make(map[string]Post, len(cfg.Posts))
	for _, p := range cfg.Posts {
		byCode[p.Code] = p
	}
	posts := make(map[string]*postState, len(route))
	for i, code := range route {
		p, ok := byCode[code]
		if !ok {
			p = Post{Code: code, TU: cfg.FallbackTU}
		}
		if p.TU <= 0 {
			p.TU = cfg.FallbackTU
		}
		if p.Stock < 0 {
			p.Stock = 0
		}
		p.Position = i + 1
		posts[code] = &postState{Post: p, configured: ok, gate: make(chan struct{}, 1)}
	}

	return &Orchestrator{
		cfg:     cfg,
		route:   route,
		emitter: emitter,
		logFn:   logFn,
		posts:   posts,
		pieces:  make(map[int]PieceStatus),
	}, nil
}

func (o *Orchestrator) LineID() string  { return o.cfg.LineID }
func (o *Orchestrator) Route() []string { return append([]string(nil), o.route...) }

// Run drives order through the line and blocks until every piece is
// finished, a piece fails, or ctx is cancelled. Cancellation is reported
// in the result, not as an error.
func (o *Orchestrator) Run(ctx context.Context, order Order) (Result, error) {
	if order.Quantity <= 0 {
		return Result{}, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, order.Quantity)
	}
	if order.ID == "" {
		return Result{}, fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	if err := o.beginRun(order); err != nil {
		return Result{}, err
	}
	defer o.endRun()

	start := time.Now()
	res := Result{OrderID: order.ID, Quantity: order.Quantity}
	finish := func(err error) (Result, error) {
		res.Finished = o.Finished()
		res.Elapsed = time.Since(start)
		if err != nil && ctx.Err() != nil && isCancellation(err) {
			res.Cancelled = true
			err = nil
		}
		if err == nil && ctx.Err() != nil && res.Finished < order.Quantity {
			res.Cancelled = true
		}
		o.emitter.EmitOrderComplete(order.ID, o.cfg.LineID, res.Finished, res.Cancelled, res.Elapsed)
		if err != nil {
			o.logFn("flow: order %s failed after %d/%d pieces: %v", order.ID, res.Finished, order.Quantity, err)
		} else {
			o.logFn("flow: order %s done: %d/%d pieces (cancelled=%v)", order.ID, res.Finished, order.Quantity, res.Cancelled)
		}
		return res, err
	}

	for _, code := range o.route {
		ps := o.posts[code]
		if !ps.configured {
			o.logFn("flow: post %s not configured, using fallback TU %s", code, o.cfg.FallbackTU)
			o.emitter.EmitPostFallback(order.ID, o.cfg.LineID, code, ps.TU)
		}
	}

	if order.Detect != nil {
		o.setPiece(1, PieceAwaitingDetection, o.route[0])
		if err := order.Detect(ctx, 1, o.route[0], 1); err != nil {
			return finish(err)
		}
		o.setPiece(1, PieceDetected, o.route[0])
	}
	o.logFn("flow: order %s started on %s (%d pieces, sequential=%v)", order.ID, o.cfg.LineID, order.Quantity, o.cfg.StrictSequential)
	o.emitter.EmitRunStarted(order.ID, o.cfg.LineID, order.Quantity)

	if o.cfg.StrictSequential {
		return finish(o.runSequential(ctx, order))
	}
	return finish(o.runParallel(ctx, order))
}

func (o *Orchestrator) runParallel(ctx context.Context, order Order) error {
	var g *errgroup.Group
	gctx := ctx
	if o.cfg.AbortOnError {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	for piece := 1; piece <= order.Quantity; piece++ {
		g.Go(func() error {
			return o.runPiece(gctx, order, piece)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) runSequential(ctx context.Context, order Order) error {
	var errs []error
	for piece := 1; piece <= order.Quantity; piece++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.runPiece(ctx, order, piece); err != nil {
			if o.cfg.AbortOnError || isCancellation(err) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runPiece walks one piece through the whole route.
func (o *Orchestrator) runPiece(ctx context.Context, order Order, piece int) error {
	for i, code := range o.route {
		if err := ctx.Err(); err != nil {
			return err
		}
		firstEntry := i == 0 && piece == 1
		if order.Detect != nil && !firstEntry {
			o.setPiece(piece, PieceAwaitingDetection, code)
			if err := order.Detect(ctx, i+1, code, piece); err != nil {
				return fmt.Errorf("piece %d detection at %s: %w", piece, code, err)
			}
		}
		if err := o.pauser.Wait(ctx); err != nil {
			return err
		}
		o.setPiece(piece, PieceDetected, code)

		if err := o.processAt(ctx, order, piece, code); err != nil {
			return err
		}

		if i < len(o.route)-1 {
			next := o.route[i+1]
			o.setPiece(piece, PieceTransiting, next)
			o.emitter.EmitTransit(order.ID, o.cfg.LineID, piece, code, next, o.cfg.TransitTime)
			if err := Sleep(ctx, o.cfg.TransitTime, o.cfg.Slice, &o.pauser); err != nil {
				return err
			}
		}
	}

	last := o.route[len(o.route)-1]
	o.mu.Lock()
	o.finished++
	finished := o.finished
	o.pieces[piece] = PieceStatus{Piece: piece, State: PieceFinished, Post: last}
	o.mu.Unlock()
	o.emitter.EmitPieceFinished(order.ID, o.cfg.LineID, piece, finished)
	return nil
}

// processAt holds the post gate for the duration of one piece's processing.
func (o *Orchestrator) processAt(ctx context.Context, order Order, piece int, code string) error {
	ps := o.posts[code]
	select {
	case ps.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ps.gate }()

	o.setPiece(piece, PieceProcessing, code)
	o.emitter.EmitPieceArrived(order.ID, o.cfg.LineID, piece, code)

	before, after, alerts := o.consume(ps)
	o.emitter.EmitStockConsumed(order.ID, o.cfg.LineID, piece, code, before, after)
	for _, kind := range alerts {
		o.logFn("flow: post %s stock %s (%d/%d)", code, kind, after, ps.Capacity)
		o.emitter.EmitStockAlert(order.ID, o.cfg.LineID, code, kind, after, ps.Capacity)
	}

	if err := Sleep(ctx, ps.TU, o.cfg.Slice, &o.pauser); err != nil {
		return err
	}

	o.mu.Lock()
	ps.processed++
	o.mu.Unlock()
	o.emitter.EmitProcessingComplete(order.ID, o.cfg.LineID, piece, code, ps.TU)
	return nil
}

// consume takes one unit of stock and reports which thresholds were
// crossed for the first time in this run.
func (o *Orchestrator) consume(ps *postState) (before, after int, alerts []ThresholdKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	before = ps.Stock
	if ps.Stock > 0 {
		ps.Stock--
	}
	after = ps.Stock
	if ps.Capacity <= 0 {
		return before, after, nil
	}
	if !ps.lowFired && float64(after) <= o.cfg.LowStockRatio*float64(ps.Capacity) {
		ps.lowFired = true
		alerts = append(alerts, ThresholdLow)
	}
	if !ps.outFired && after == 0 {
		ps.outFired = true
		alerts = append(alerts, ThresholdOut)
	}
	return before, after, alerts
}

func (o *Orchestrator) beginRun(order Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunInProgress
	}
	o.running = true
	o.finished = 0
	o.pieces = make(map[int]PieceStatus, order.Quantity)
	for piece := 1; piece <= order.Quantity; piece++ {
		o.pieces[piece] = PieceStatus{Piece: piece, State: PieceAwaitingDetection, Post: o.route[0]}
	}
	for _, ps := range o.posts {
		ps.processed = 0
		ps.lowFired = false
		ps.outFired = false
	}
	return nil
}

func (o *Orchestrator) endRun() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) setPiece(piece int, state PieceState, post string) {
	o.mu.Lock()
	o.pieces[piece] = PieceStatus{Piece: piece, State: state, Post: post}
	o.mu.Unlock()
}

func (o *Orchestrator) Pause()       { o.pauser.Pause() }
func (o *Orchestrator) Resume()      { o.pauser.Resume() }
func (o *Orchestrator) Paused() bool { return o.pauser.Paused() }

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Finished returns the finished-piece count of the current or last run.
func (o *Orchestrator) Finished() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

func (o *Orchestrator) Stock(code string) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ps, ok := o.posts[code]
	if !ok {
		return 0, false
	}
	return ps.Stock, true
}

// SetStock replaces the stock of a post, e.g. after a restock. Threshold
// alerts already raised in the current run stay raised.
func (o *Orchestrator) SetStock(code string, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %s=%d", ErrNegativeStock, code, n)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	ps, ok := o.posts[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPost, code)
	}
	ps.Stock = n
	return nil
}

// Posts returns the posts in route order.
func (o *Orchestrator) Posts() []Post {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Post, 0, len(o.route))
	for _, code := range o.route {
		out = append(out, o.posts[code].Post)
	}
	return out
}

// Processed returns how many pieces post code completed in the current or last run.
func (o *Orchestrator) Processed(code string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ps, ok := o.posts[code]; ok {
		return ps.processed
	}
	return 0
}

// PieceStates returns the state of every piece of the current or last run.
func (o *Orchestrator) PieceStates() []PieceStatus {
	o.mu.Lock()
	out := make([]PieceStatus, 0, len(o.pieces))
	for _, st := range o.pieces {
		out = append(out, st)
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Piece < out[j].Piece })
	return out
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
