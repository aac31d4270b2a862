// Package server реализует авторитетный цикл симуляции: принимает запросы клиентов,
// применяет их к миру, тикает части и рассылает изменения.
package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-multipart/internal/api"
	"github.com/annel0/mmo-multipart/internal/cache"
	"github.com/annel0/mmo-multipart/internal/eventbus"
	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/multipart"
	mpsync "github.com/annel0/mmo-multipart/internal/sync"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
)

// ErrInboundFull: очередь входящих запросов переполнена, запрос отброшен
var ErrInboundFull = errors.New("server: очередь запросов переполнена")

// Config: параметры цикла симуляции
type Config struct {
	NodeID           string
	TickRate         int           // тиков в секунду
	ViewRadius       int           // радиус наблюдения клиента в чанках
	AutosaveInterval time.Duration // 0: без периодического сохранения
	InboundQueue     int
	// UnloadIdle выгружает чанки вне областей наблюдения при сохранении.
	// Имеет смысл только с постоянным хранилищем.
	UnloadIdle bool
}

func (c *Config) applyDefaults() {
	if c.TickRate <= 0 {
		c.TickRate = 20
	}
	if c.ViewRadius <= 0 {
		c.ViewRadius = 4
	}
	if c.InboundQueue <= 0 {
		c.InboundQueue = 4096
	}
}

type inboundKind int

const (
	inConnect inboundKind = iota
	inDisconnect
	inMessage
)

type inbound struct {
	kind inboundKind
	peer string
	msg  mpsync.Message
}

// view: область наблюдения клиента
type view struct {
	center vec.Vec2
	radius int
}

// Authority владеет миром. Все изменения контейнеров выполняются
// в одной горутине (Run или Step); сетевые горутины только ставят запросы в очередь.
type Authority struct {
	cfg       Config
	world     *world.World
	sm        *mpsync.Manager
	snapshots *cache.CellSnapshots
	audit     *auditPublisher

	inbound chan inbound
	views   map[string]view

	statTick       uint64
	statChunks     int64
	statContainers int64
	statPeers      int64
	statPending    int64
	statDropped    uint64

	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger *logging.Logger
}

// NewAuthority связывает мир с синхронизацией. Мир должен быть создан
// со слушателями sm.Tracker() и snapshots (если snapshots не nil).
// bus может быть nil: тогда события аудита не публикуются.
func NewAuthority(cfg Config, w *world.World, sm *mpsync.Manager, snapshots *cache.CellSnapshots, bus eventbus.EventBus) *Authority {
	cfg.applyDefaults()
	sm.Tracker().SetSource(w)

	a := &Authority{
		cfg:       cfg,
		world:     w,
		sm:        sm,
		snapshots: snapshots,
		inbound:   make(chan inbound, cfg.InboundQueue),
		views:     make(map[string]view),
		logger:    logging.GetServerLogger(),
	}
	if bus != nil {
		a.audit = newAuditPublisher(bus, cfg.NodeID, 1024)
	}
	return a
}

// OnConnect вызывается транспортом при подключении клиента
func (a *Authority) OnConnect(peer string) {
	a.enqueue(inbound{kind: inConnect, peer: peer})
}

// OnDisconnect вызывается транспортом при отключении клиента
func (a *Authority) OnDisconnect(peer string) {
	a.enqueue(inbound{kind: inDisconnect, peer: peer})
}

// OnFrame разбирает кадр клиента в сетевой горутине и ставит запрос в очередь
func (a *Authority) OnFrame(peer string, frame []byte) {
	msg, err := a.sm.Decode(peer, frame)
	if err != nil {
		return
	}
	a.enqueue(inbound{kind: inMessage, peer: peer, msg: msg})
}

func (a *Authority) enqueue(in inbound) bool {
	select {
	case a.inbound <- in:
		return true
	default:
		atomic.AddUint64(&a.statDropped, 1)
		a.logger.Warn("%v: запрос от %s отброшен", ErrInboundFull, in.peer)
		return false
	}
}

// Start запускает цикл симуляции в фоне
func (a *Authority) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Run(ctx)
	}()
}

// Stop останавливает цикл, дожидаясь финального сохранения
func (a *Authority) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.audit.close()
}

// Run крутит тики с заданной частотой до отмены ctx
func (a *Authority) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.TickRate))
	defer ticker.Stop()

	var autosave <-chan time.Time
	if a.cfg.AutosaveInterval > 0 {
		t := time.NewTicker(a.cfg.AutosaveInterval)
		defer t.Stop()
		autosave = t.C
	}

	a.logger.Info("🎮 Цикл симуляции запущен: %d тиков/с, радиус обзора %d", a.cfg.TickRate, a.cfg.ViewRadius)
	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return
		case <-ticker.C:
			a.Step(ctx)
		case <-autosave:
			a.Save()
		}
	}
}

// Step выполняет один тик: запросы, симуляция, рассылка, снимки
func (a *Authority) Step(ctx context.Context) {
	a.drain(ctx)
	a.world.Tick()

	atomic.StoreInt64(&a.statPending, int64(a.sm.Tracker().PendingChanges()))
	if err := a.sm.Tracker().Flush(ctx); err != nil {
		a.logger.Warn("Рассылка изменений с ошибками: %v", err)
	}
	if a.snapshots != nil {
		if err := a.snapshots.Capture(ctx, a.world); err != nil {
			a.logger.Warn("Снимки клеток не обновлены: %v", err)
		}
	}
	a.updateStats()
}

// drain применяет запросы, накопившиеся к началу тика
func (a *Authority) drain(ctx context.Context) {
	for n := len(a.inbound); n > 0; n-- {
		in := <-a.inbound
		switch in.kind {
		case inConnect:
			a.connect(in.peer)
		case inDisconnect:
			a.disconnect(in.peer)
		case inMessage:
			a.handle(ctx, in.peer, in.msg)
		}
	}
}

func (a *Authority) connect(peer string) {
	if _, ok := a.views[peer]; ok {
		return
	}
	a.observe(peer, view{radius: a.cfg.ViewRadius})
	a.logger.Info("👋 Клиент %s наблюдает мир", peer)
	a.audit.emit(EventPeerConnected, AuditEvent{Peer: peer, Tick: a.world.CurrentTick()})
}

func (a *Authority) disconnect(peer string) {
	if _, ok := a.views[peer]; !ok {
		return
	}
	delete(a.views, peer)
	a.sm.Tracker().Forget(peer)
	a.audit.emit(EventPeerDisconnected, AuditEvent{Peer: peer, Tick: a.world.CurrentTick()})
}

// observe загружает чанки области и передаёт её трекеру
func (a *Authority) observe(peer string, v view) {
	for dx := -v.radius; dx <= v.radius; dx++ {
		for dz := -v.radius; dz <= v.radius; dz++ {
			chunk := vec.Vec2{X: v.center.X + dx, Y: v.center.Y + dz}
			if !chunk.WithinRadius(v.center, v.radius) {
				continue
			}
			if err := a.world.LoadChunk(chunk); err != nil {
				a.logger.Error("Чанк %v не загружен: %v", chunk, err)
			}
		}
	}
	a.views[peer] = v
	a.sm.Tracker().Observe(peer, v.center, v.radius)
}

// follow сдвигает область наблюдения к клетке, с которой работает клиент
func (a *Authority) follow(peer string, pos vec.Vec3) {
	v, ok := a.views[peer]
	if !ok {
		// клиент без события подключения (например, через шину)
		a.connect(peer)
		v = a.views[peer]
	}
	chunk := pos.ToChunkCoords()
	if chunk.WithinRadius(v.center, v.radius) {
		return
	}
	v.center = chunk
	a.observe(peer, v)
}

// handle применяет запрос клиента. Отказы не порождают сетевых сообщений.
func (a *Authority) handle(ctx context.Context, peer string, msg mpsync.Message) {
	pos := msg.CellPos()
	a.follow(peer, pos)
	tick := a.world.CurrentTick()

	switch m := msg.(type) {
	case *mpsync.Place:
		id, err := a.world.Place(ctx, m.PlaceRequest())
		if err != nil {
			a.reject(peer, pos, m.PartKind, err)
			return
		}
		a.audit.emit(EventPartPlaced, AuditEvent{Peer: peer, Pos: &pos, PartID: &id, Kind: m.PartKind, Tick: tick})

	case *mpsync.Remove:
		if err := a.world.RemovePart(pos, m.ID); err != nil {
			a.reject(peer, pos, "", err)
			return
		}
		id := m.ID
		a.audit.emit(EventPartRemoved, AuditEvent{Peer: peer, Pos: &pos, PartID: &id, Tick: tick})

	case *mpsync.Resync:
		if err := a.sm.Tracker().RequestResync(peer, pos); err != nil {
			a.logger.Warn("Resync %s для %s: %v", pos, peer, err)
		}
	}
}

func (a *Authority) reject(peer string, pos vec.Vec3, kind multipart.PartKind, err error) {
	if errors.Is(err, multipart.ErrInvariant) {
		a.logger.Error("❌ Нарушен инвариант в %s (клиент %s): %v", pos, peer, err)
	} else {
		a.logger.Debug("Запрос %s в %s отклонён: %v", peer, pos, err)
	}
	a.audit.emit(EventPlacementRejected, AuditEvent{
		Peer:  peer,
		Pos:   &pos,
		Kind:  kind,
		Error: err.Error(),
		Tick:  a.world.CurrentTick(),
	})
}

// Save сохраняет мир и выгружает чанки, которые никто не наблюдает
func (a *Authority) Save() {
	if err := a.world.SaveAll(); err != nil {
		a.logger.Error("💾 Ошибка сохранения мира: %v", err)
	}
	if a.snapshots != nil {
		a.snapshots.Purge()
	}
	if !a.cfg.UnloadIdle {
		return
	}

	unloaded := 0
	for _, chunk := range a.world.LoadedChunks() {
		if a.observed(chunk) {
			continue
		}
		if err := a.world.UnloadChunk(chunk); err != nil {
			a.logger.Error("Чанк %v не выгружен: %v", chunk, err)
			continue
		}
		unloaded++
	}
	if unloaded > 0 {
		a.logger.Debug("💾 Выгружено чанков: %d", unloaded)
	}
}

func (a *Authority) observed(chunk vec.Vec2) bool {
	for _, v := range a.views {
		if chunk.WithinRadius(v.center, v.radius) {
			return true
		}
	}
	return false
}

func (a *Authority) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.sm.Tracker().Flush(ctx); err != nil {
		a.logger.Warn("Финальная рассылка с ошибками: %v", err)
	}
	if err := a.world.SaveAll(); err != nil {
		a.logger.Error("💾 Ошибка сохранения мира: %v", err)
	}
	a.logger.Info("🛑 Цикл симуляции остановлен на тике %d", a.world.CurrentTick())
}

func (a *Authority) updateStats() {
	chunks := a.world.LoadedChunks()
	containers := 0
	for _, chunk := range chunks {
		containers += len(a.world.ContainersInChunk(chunk))
	}
	atomic.StoreUint64(&a.statTick, a.world.CurrentTick())
	atomic.StoreInt64(&a.statChunks, int64(len(chunks)))
	atomic.StoreInt64(&a.statContainers, int64(containers))
	atomic.StoreInt64(&a.statPeers, int64(len(a.views)))
}

// GameStats реализует api.StatsSource; безопасно вызывать из любых горутин
func (a *Authority) GameStats() api.GameStats {
	return api.GameStats{
		Tick:           atomic.LoadUint64(&a.statTick),
		LoadedChunks:   int(atomic.LoadInt64(&a.statChunks)),
		Containers:     int(atomic.LoadInt64(&a.statContainers)),
		Peers:          int(atomic.LoadInt64(&a.statPeers)),
		PendingChanges: int(atomic.LoadInt64(&a.statPending)),
		InboundQueue:   len(a.inbound),
	}
}

// Dropped возвращает число отброшенных из-за переполнения запросов
func (a *Authority) Dropped() uint64 {
	return atomic.LoadUint64(&a.statDropped)
}
