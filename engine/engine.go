// Package engine owns the line: it builds the orchestrator, provider,
// health and alert components around the store and messaging client, and
// connects them through an event bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lineflow/alerts"
	"lineflow/archive"
	"lineflow/config"
	"lineflow/flow"
	"lineflow/health"
	"lineflow/iot"
	"lineflow/messaging"
	"lineflow/metrics"
	"lineflow/poststate"
	"lineflow/realtime"
	"lineflow/report"
	"lineflow/store"
)

var ErrNoActiveOrder = errors.New("no active order")

type LogFunc func(format string, args ...any)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	PostState  *poststate.Manager
	MsgClient  *messaging.Client
	Provider   iot.Provider
	Metrics    *metrics.Metrics
	Archive    *archive.Uploader
	LogFunc    LogFunc
	Debug      bool
}

type activeOrder struct {
	id       string
	quantity int
	started  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// OrderStatus describes the order currently on the line.
type OrderStatus struct {
	ID        string             `json:"id"`
	Quantity  int                `json:"quantity"`
	Finished  int                `json:"finished"`
	Paused    bool               `json:"paused"`
	StartedAt time.Time          `json:"started_at"`
	Pieces    []flow.PieceStatus `json:"pieces"`
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	postState  *poststate.Manager
	msgClient  *messaging.Client
	pub        *publisher
	provider   iot.Provider
	metrics    *metrics.Metrics
	archive    *archive.Uploader
	orch       *flow.Orchestrator
	latch      *iot.DetectionLatch
	alerts     *alerts.Manager
	health     *health.Engine
	integrator *realtime.Integrator
	Events     *EventBus
	logFn      LogFunc
	debug      bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.Mutex
	order             *activeOrder
	providerConnected bool
	msgConnected      bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	m := c.Metrics
	if m == nil {
		m = metrics.New()
	}
	msg := c.MsgClient
	if msg == nil {
		msg = messaging.NewClient(&config.MessagingConfig{Backend: "none"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		postState:  c.PostState,
		msgClient:  msg,
		provider:   c.Provider,
		metrics:    m,
		archive:    c.Archive,
		Events:     NewEventBus(),
		logFn:      logFn,
		debug:      c.Debug,
		ctx:        ctx,
		cancel:     cancel,
		stopChan:   make(chan struct{}),
	}
}

func (e *Engine) Start() error {
	e.pub = newPublisher(e.msgClient, publishQueueSize, e.logFn)
	posts, err := e.loadPosts()
	if err != nil {
		return fmt.Errorf("load posts: %w", err)
	}
	line := e.cfg.Line
	e.orch, err = flow.New(flow.Config{
		LineID:           line.ID,
		Route:            line.Route,
		Posts:            posts,
		TransitTime:      line.Transit,
		StrictSequential: line.StrictSequential,
		FallbackTU:       line.FallbackTU,
		LowStockRatio:    line.LowStockRatio,
		Slice:            line.Slice,
		AbortOnError:     line.AbortOnError,
		LogFunc:          flow.LogFunc(e.logFn),
	}, &flowEmitter{bus: e.Events})
	if err != nil {
		return err
	}
	for _, p := range e.orch.Posts() {
		e.metrics.SetStock(line.ID, p.Code, p.Stock)
	}

	if e.postState != nil {
		if err := e.postState.SyncRedisFromSQL(line.ID); err != nil {
			e.logFn("engine: redis sync: %v", err)
		}
	}

	e.alerts = alerts.NewManager()
	e.health = health.NewEngine(e.cfg.Maintenance.OptimalInterval)
	e.integrator = realtime.New(realtime.Config{
		Sensors:             &providerSensors{provider: e.provider},
		Production:          &lineProduction{orch: e.orch, sim: realtime.NewSimulatedProduction(e.cfg.Provider.Simulation.Seed)},
		Maintenance:         &storeMaintenance{db: e.db},
		Alerts:              e.alerts,
		Health:              e.health,
		IncidentProbability: e.cfg.Realtime.IncidentProbability,
		Seed:                e.cfg.Provider.Simulation.Seed,
		LogFunc:             realtime.LogFunc(e.logFn),
	})

	// Wire event handlers
	e.wireEventHandlers()

	// Detection gating only applies when real triggers are present.
	if _, ok := iot.SerialOf(e.provider); ok {
		e.latch = iot.NewDetectionLatch(e.provider.Events(), e.cfg.Provider.Serial.GatingTimeout, iot.LogFunc(e.logFn))
	}
	e.forwardProviderEvents()
	if err := e.provider.Connect(e.ctx); err != nil {
		e.logFn("engine: provider %s connect: %v", e.provider.Name(), err)
	}

	e.markOverdue()
	e.checkConnectionStatus()

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.connectionHealthLoop()
	}()
	go func() {
		defer e.wg.Done()
		e.integrator.Run(e.ctx, e.Line(), e.cfg.Realtime.Interval, e.publishSnapshot)
	}()

	e.logFn("engine: started (line %s, provider %s)", line.ID, e.provider.Name())
	return nil
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		active := e.order
		e.mu.Unlock()
		if active != nil {
			active.cancel()
			select {
			case <-active.done:
			case <-time.After(5 * time.Second):
				e.logFn("engine: order %s did not stop in time", active.id)
			}
		}
		close(e.stopChan)
		e.cancel()
		if e.latch != nil {
			e.latch.Close()
		}
		if e.provider != nil {
			if err := e.provider.Disconnect(); err != nil {
				e.logFn("engine: provider disconnect: %v", err)
			}
		}
		e.wg.Wait()
		if e.pub != nil && !e.pub.stop(5*time.Second) {
			e.logFn("engine: publish queue did not drain in time")
		}
		e.logFn("engine: stopped")
	})
}

// Accessors
func (e *Engine) DB() *store.DB                    { return e.db }
func (e *Engine) AppConfig() *config.Config        { return e.cfg }
func (e *Engine) ConfigPath() string               { return e.configPath }
func (e *Engine) PostState() *poststate.Manager    { return e.postState }
func (e *Engine) MsgClient() *messaging.Client     { return e.msgClient }
func (e *Engine) Provider() iot.Provider           { return e.provider }
func (e *Engine) Metrics() *metrics.Metrics        { return e.metrics }
func (e *Engine) Orchestrator() *flow.Orchestrator { return e.orch }
func (e *Engine) Alerts() *alerts.Manager          { return e.alerts }

// Line is the realtime view of the configured route.
func (e *Engine) Line() realtime.Line {
	return realtime.Line{ID: e.cfg.Line.ID, Posts: e.orch.Route()}
}

// loadPosts seeds configured posts into the store and reads the line back.
func (e *Engine) loadPosts() ([]flow.Post, error) {
	line := e.cfg.Line
	var seeds []*store.Post
	for i, code := range flow.NewRoute(line.Route) {
		pc, ok := line.PostConfig(code)
		if !ok {
			continue
		}
		seeds = append(seeds, &store.Post{
			Code:     code,
			LineID:   line.ID,
			Position: i + 1,
			Capacity: pc.Capacity,
			Stock:    pc.Stock,
			TU:       time.Duration(pc.TU * float64(time.Second)),
		})
	}
	added, err := e.db.SeedPosts(seeds)
	if err != nil {
		return nil, err
	}
	if added > 0 {
		e.logFn("engine: seeded %d posts for line %s", added, line.ID)
	}

	stored, err := e.db.ListPosts(line.ID)
	if err != nil {
		return nil, err
	}
	posts := make([]flow.Post, len(stored))
	for i, p := range stored {
		posts[i] = flow.Post{Code: p.Code, Position: p.Position, Capacity: p.Capacity, Stock: p.Stock, TU: p.TU}
	}
	return posts, nil
}

// --- Orders ---

// RunOrder runs a production order on the line and blocks until it ends.
func (e *Engine) RunOrder(ctx context.Context, quantity int) (flow.Result, error) {
	id, runCtx, err := e.beginOrder(ctx, quantity)
	if err != nil {
		return flow.Result{}, err
	}
	return e.runOrder(runCtx, id, quantity)
}

// StartOrder launches an order in the background and returns its id.
func (e *Engine) StartOrder(quantity int) (string, error) {
	id, runCtx, err := e.beginOrder(e.ctx, quantity)
	if err != nil {
		return "", err
	}
	go e.runOrder(runCtx, id, quantity)
	return id, nil
}

func (e *Engine) beginOrder(parent context.Context, quantity int) (string, context.Context, error) {
	if quantity <= 0 {
		return "", nil, fmt.Errorf("%w: quantity %d", flow.ErrInvalidOrder, quantity)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.order != nil {
		return "", nil, flow.ErrRunInProgress
	}
	id := uuid.NewString()
	if err := e.db.CreateOrder(&store.Order{ID: id, LineID: e.cfg.Line.ID, Quantity: quantity}); err != nil {
		return "", nil, fmt.Errorf("record order: %w", err)
	}
	ctx, cancel := context.WithCancel(parent)
	e.order = &activeOrder{id: id, quantity: quantity, started: time.Now(), cancel: cancel, done: make(chan struct{})}
	if e.latch != nil {
		e.latch.Reset()
	}
	return id, ctx, nil
}

func (e *Engine) runOrder(ctx context.Context, id string, quantity int) (flow.Result, error) {
	order := flow.Order{ID: id, Quantity: quantity}
	if e.latch != nil {
		order.Detect = e.latch.Wait
	}
	res, err := e.orch.Run(ctx, order)

	status, detail := store.OrderCompleted, ""
	switch {
	case err != nil:
		status, detail = store.OrderFailed, err.Error()
	case res.Cancelled:
		status = store.OrderCancelled
	}
	if ferr := e.db.FinishOrder(id, res.Finished, status, detail); ferr != nil {
		e.logFn("engine: record outcome of order %s: %v", id, ferr)
	}

	e.mu.Lock()
	active := e.order
	e.order = nil
	e.mu.Unlock()
	e.orch.Resume()
	active.cancel()
	close(active.done)

	e.Events.Emit(Event{Type: EventOrderFinished, Payload: OrderFinishedEvent{
		OrderID:  id,
		LineID:   e.cfg.Line.ID,
		Quantity: quantity,
		Finished: res.Finished,
		Status:   status,
		Detail:   detail,
	}})
	return res, err
}

func (e *Engine) activeOrder() (*activeOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.order == nil {
		return nil, ErrNoActiveOrder
	}
	return e.order, nil
}

func (e *Engine) CancelOrder() error {
	o, err := e.activeOrder()
	if err != nil {
		return err
	}
	e.logFn("engine: cancelling order %s", o.id)
	o.cancel()
	return nil
}

func (e *Engine) PauseOrder() error {
	if _, err := e.activeOrder(); err != nil {
		return err
	}
	e.orch.Pause()
	return nil
}

func (e *Engine) ResumeOrder() error {
	if _, err := e.activeOrder(); err != nil {
		return err
	}
	e.orch.Resume()
	return nil
}

// WaitOrder blocks until the active order, if any, has been recorded.
func (e *Engine) WaitOrder(ctx context.Context) error {
	o, err := e.activeOrder()
	if err != nil {
		return nil
	}
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) CurrentOrder() (OrderStatus, bool) {
	o, err := e.activeOrder()
	if err != nil {
		return OrderStatus{}, false
	}
	return OrderStatus{
		ID:        o.id,
		Quantity:  o.quantity,
		Finished:  e.orch.Finished(),
		Paused:    e.orch.Paused(),
		StartedAt: o.started,
		Pieces:    e.orch.PieceStates(),
	}, true
}

// --- Stock ---

// SetStock corrects the stock of a post and records who did it.
func (e *Engine) SetStock(code string, stock int, reason, actor string) (*store.StockCorrection, error) {
	before, ok := e.orch.Stock(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", flow.ErrUnknownPost, code)
	}
	if err := e.orch.SetStock(code, stock); err != nil {
		return nil, err
	}
	e.persistStock(code, stock)

	c := &store.StockCorrection{PostCode: code, Before: before, After: stock, Reason: reason, Actor: actor}
	if err := e.db.CreateCorrection(c); err != nil {
		return nil, fmt.Errorf("record correction: %w", err)
	}
	e.Events.Emit(Event{Type: EventStockCorrected, Payload: StockCorrectedEvent{
		CorrectionID: c.ID,
		Post:         code,
		Before:       before,
		After:        stock,
		Reason:       reason,
		Actor:        actor,
	}})
	return c, nil
}

// persistStock writes live stock through the post state manager when
// there is one, straight to SQL otherwise.
func (e *Engine) persistStock(code string, stock int) {
	var err error
	if e.postState != nil {
		err = e.postState.SetStock(code, stock)
	} else {
		err = e.db.UpdatePostStock(code, stock)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logFn("engine: persist stock for %s: %v", code, err)
	}
	e.metrics.SetStock(e.cfg.Line.ID, code, stock)
}

func (e *Engine) postIndex(code string) int {
	for i, c := range e.orch.Route() {
		if c == code {
			return i + 1
		}
	}
	return 0
}

// --- Realtime ---

// Refresh builds a new snapshot immediately.
func (e *Engine) Refresh() realtime.Snapshot {
	snap, diff := e.integrator.Tick(e.Line())
	e.publishSnapshot(snap, diff)
	return snap
}

// Snapshot returns the last snapshot of the line.
func (e *Engine) Snapshot() (realtime.Snapshot, bool) {
	return e.integrator.Previous(e.cfg.Line.ID)
}

func (e *Engine) publishSnapshot(snap realtime.Snapshot, diff realtime.Diff) {
	e.Events.Emit(Event{Type: EventSnapshot, Payload: SnapshotEvent{Snapshot: snap, Diff: diff}})
	for _, a := range diff.NewAlerts {
		e.Events.Emit(Event{Type: EventAlertRaised, Payload: AlertRaisedEvent{Alert: a}})
	}
}

// --- Alerts and maintenance ---

func (e *Engine) AcknowledgeAlert(id, by string) (alerts.Alert, error) {
	a, err := e.alerts.Acknowledge(id, by)
	if err != nil {
		return a, err
	}
	e.Events.Emit(Event{Type: EventAlertChanged, Payload: AlertChangedEvent{Alert: a, Action: "acknowledged", Actor: by}})
	return a, nil
}

func (e *Engine) ResolveAlert(id, by string) (alerts.Alert, error) {
	a, err := e.alerts.Resolve(id)
	if err != nil {
		return a, err
	}
	e.Events.Emit(Event{Type: EventAlertChanged, Payload: AlertChangedEvent{Alert: a, Action: "resolved", Actor: by}})
	return a, nil
}

// HealthScores scores every post of the line from stored maintenance and
// the sensor window the snapshots are scored from.
func (e *Engine) HealthScores() ([]health.Score, error) {
	route := e.orch.Route()
	scores := make([]health.Score, 0, len(route))
	for _, code := range route {
		recs, err := e.db.ListMaintenance(code)
		if err != nil {
			return nil, err
		}
		scores = append(scores, e.health.ScoreCounts(code, recs, e.integrator.SensorCounts(code)))
	}
	return scores, nil
}

func (e *Engine) ScheduleMaintenance(rec *health.MaintenanceRecord) error {
	if e.postIndex(rec.PostID) == 0 {
		return fmt.Errorf("%w: %s", flow.ErrUnknownPost, rec.PostID)
	}
	if rec.Status == "" {
		rec.Status = health.MaintenanceScheduled
	}
	if err := e.db.CreateMaintenance(rec); err != nil {
		return err
	}
	e.db.AppendAudit("maintenance", fmt.Sprint(rec.ID), "scheduled", rec.PostID, "system")
	return nil
}

func (e *Engine) CompleteMaintenance(id int64, actor string) error {
	if err := e.db.CompleteMaintenance(id, time.Now()); err != nil {
		return err
	}
	e.db.AppendAudit("maintenance", fmt.Sprint(id), "completed", "", actor)
	return nil
}

func (e *Engine) markOverdue() {
	n, err := e.db.MarkOverdue(time.Now())
	if err != nil {
		e.logFn("engine: mark overdue maintenance: %v", err)
		return
	}
	if n > 0 {
		e.logFn("engine: %d maintenance tasks now overdue", n)
	}
}

// --- Reports ---

// OrderReport renders one order with its audit trail and the current
// state of the line as an xlsx workbook.
func (e *Engine) OrderReport(id string) ([]byte, error) {
	o, err := e.db.GetOrder(id)
	if err != nil {
		return nil, err
	}
	trail, err := e.db.ListAuditFor("order", id)
	if err != nil {
		return nil, err
	}
	posts, err := e.db.ListPosts(e.cfg.Line.ID)
	if err != nil {
		return nil, err
	}
	return report.Bytes(report.Report{
		Title:  fmt.Sprintf("Order %s (line %s)", o.ID, o.LineID),
		Orders: []*store.Order{o},
		Posts:  posts,
		Audit:  trail,
	})
}

// ExportReport renders the recent order history with stock corrections.
func (e *Engine) ExportReport(limit int) ([]byte, error) {
	orders, err := e.db.ListOrders(limit)
	if err != nil {
		return nil, err
	}
	posts, err := e.db.ListPosts(e.cfg.Line.ID)
	if err != nil {
		return nil, err
	}
	corrections, err := e.db.ListCorrections(limit)
	if err != nil {
		return nil, err
	}
	return report.Bytes(report.Report{
		Title:       fmt.Sprintf("Line %s history", e.cfg.Line.ID),
		Orders:      orders,
		Posts:       posts,
		Corrections: corrections,
	})
}

// archiveOrder uploads the report of a finished order when an archive
// bucket is configured.
func (e *Engine) archiveOrder(id string) {
	if e.archive == nil {
		return
	}
	data, err := e.OrderReport(id)
	if err != nil {
		e.logFn("engine: report for order %s: %v", id, err)
		return
	}
	ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	defer cancel()
	key, err := e.archive.Put(ctx, archive.OrderReportName(e.cfg.Line.ID, id, time.Now()), data, report.ContentType)
	if err != nil {
		e.logFn("engine: archive order %s: %v", id, err)
		e.db.AppendAudit("order", id, "archive_failed", err.Error(), "system")
		return
	}
	e.db.AppendAudit("order", id, "archived", e.archive.Bucket()+"/"+key, "system")
}

// --- Provider ---

func (e *Engine) SendRobotCommand(robotID, command, target string) error {
	cmd, err := iot.ParseCommand(command)
	if err != nil {
		return err
	}
	return e.provider.SendRobotCommand(robotID, cmd, target)
}

// SetSensorThreshold changes the warn/crit levels of a sensor.
func (e *Engine) SetSensorThreshold(id string, warn, crit float64, actor string) error {
	if err := e.provider.SetThreshold(id, warn, crit); err != nil {
		return err
	}
	e.db.AppendAudit("sensor", id, "threshold", fmt.Sprintf("warn=%g crit=%g", warn, crit), actor)
	return nil
}

func (e *Engine) forwardProviderEvents() {
	ch, cancel := e.provider.Events().Subscribe(256)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		for {
			select {
			case <-e.ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				e.handleProviderEvent(evt)
			}
		}
	}()
}

func (e *Engine) handleProviderEvent(evt iot.Event) {
	switch evt.Kind {
	case iot.EventSensorReading:
		if evt.Reading != nil {
			e.Events.Emit(Event{Type: EventSensorReading, Payload: SensorReadingEvent{Source: evt.Source, Reading: *evt.Reading}})
		}
	case iot.EventCriticalAlert:
		if evt.Critical != nil {
			e.Events.Emit(Event{Type: EventCriticalAlert, Payload: CriticalAlertEvent{Source: evt.Source, Alert: *evt.Critical}})
		}
	case iot.EventRobotState:
		if evt.Robot != nil {
			e.Events.Emit(Event{Type: EventRobotState, Payload: RobotStateEvent{Source: evt.Source, Robot: *evt.Robot}})
		}
	case iot.EventLog:
		if evt.Log != nil && (e.debug || evt.Log.Level != "debug") {
			e.logFn("iot: [%s] %s", evt.Source, evt.Log.Message)
		}
	}
}

// --- Connections ---

func (e *Engine) checkConnectionStatus() {
	providerUp := e.provider.IsConnected()
	msgUp := e.msgClient.IsConnected()

	var events []Event
	e.mu.Lock()
	// Provider
	if providerUp != e.providerConnected {
		e.providerConnected = providerUp
		if providerUp {
			events = append(events, Event{Type: EventProviderConnected, Payload: ConnectionEvent{Detail: e.provider.Name() + " connected"}})
		} else {
			events = append(events, Event{Type: EventProviderDisconnected, Payload: ConnectionEvent{Detail: e.provider.Name() + " disconnected"}})
		}
	}
	// Messaging
	if msgUp != e.msgConnected {
		e.msgConnected = msgUp
		if msgUp {
			events = append(events, Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		} else {
			events = append(events, Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
		}
	}
	e.mu.Unlock()

	for _, evt := range events {
		e.Events.Emit(evt)
	}
	e.metrics.SetDropped(uint64(e.provider.Events().Dropped()))
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
			e.markOverdue()
		}
	}
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured (%s)", e.cfg.Messaging.Backend)
	}
	e.checkConnectionStatus()
}
