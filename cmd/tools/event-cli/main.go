package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/mmo-multipart/internal/eventbus"
	"github.com/annel0/mmo-multipart/internal/server"
)

const (
	defaultNATSURL = "nats://127.0.0.1:4222"
	timeFormat     = "15:04:05"
)

// knownTypes: события аудита, публикуемые сервером
var knownTypes = []struct {
	name, description string
}{
	{server.EventPartPlaced, "часть установлена в клетку"},
	{server.EventPartRemoved, "часть снята с клетки"},
	{server.EventPlacementRejected, "запрос клиента отклонён"},
	{server.EventPeerConnected, "клиент начал наблюдать мир"},
	{server.EventPeerDisconnected, "клиент отключился"},
}

func main() {
	var (
		natsURL    = flag.String("nats", defaultNATSURL, "NATS server URL")
		stream     = flag.String("stream", "MULTIPART", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		sources    = flag.String("sources", "", "Source nodes filter (comma-separated)")
		peers      = flag.String("peers", "", "Peer filter (comma-separated)")
		window     = flag.Duration("window", 30*time.Second, "Stats collection window")
		limit      = flag.Int("limit", 0, "Stop after N events (0: until interrupted)")
	)
	flag.Parse()

	if *command == "types" {
		showTypes()
		return
	}

	bus, err := eventbus.NewJetStreamBus(*natsURL, *stream, 24*time.Hour)
	if err != nil {
		log.Fatalf("❌ Failed to connect to JetStream: %v", err)
	}
	defer bus.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	filter := eventbus.Filter{
		Types:   parseStringList(*eventTypes),
		Sources: parseStringList(*sources),
	}
	peerSet := make(map[string]bool)
	for _, p := range parseStringList(*peers) {
		peerSet[p] = true
	}

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, filter, peerSet, *limit); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}
	case "stats":
		if err := showStats(ctx, bus, filter, peerSet, *window); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

// tailEvents выводит новые события аудита до прерывания или лимита
func tailEvents(ctx context.Context, bus eventbus.EventBus, filter eventbus.Filter, peers map[string]bool, limit int) error {
	fmt.Printf("🎬 Tailing audit events (limit: %d)\n", limit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		count int
	)
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, env *eventbus.Envelope) {
		ev, ok := decode(env, peers)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if limit > 0 && count >= limit {
			return
		}
		printEvent(env, ev)
		count++
		if limit > 0 && count >= limit {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	mu.Lock()
	fmt.Printf("\n📊 Total events: %d\n", count)
	mu.Unlock()
	return nil
}

// showStats считает события по типам за окно наблюдения
func showStats(ctx context.Context, bus eventbus.EventBus, filter eventbus.Filter, peers map[string]bool, window time.Duration) error {
	fmt.Printf("📊 Collecting audit events for %s\n", window)

	var (
		mu      sync.Mutex
		byType  = make(map[string]int)
		byPeer  = make(map[string]int)
		total   int
		started = time.Now()
	)
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, env *eventbus.Envelope) {
		ev, ok := decode(env, peers)
		if !ok {
			return
		}
		mu.Lock()
		byType[env.EventType]++
		byPeer[ev.Peer]++
		total++
		mu.Unlock()
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(window):
	}
	sub.Unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	fmt.Printf("Period: %s - %s\n", started.Format(timeFormat), time.Now().Format(timeFormat))
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, k := range sortedKeys(byType) {
		fmt.Printf("  %s: %d events\n", k, byType[k])
	}
	fmt.Println("\nBy peer:")
	for _, k := range sortedKeys(byPeer) {
		fmt.Printf("  %s: %d events\n", k, byPeer[k])
	}
	return nil
}

// showTypes выводит типы событий аудита
func showTypes() {
	fmt.Println("📋 Audit event types")
	for _, t := range knownTypes {
		fmt.Printf("  %-18s %s\n", t.name, t.description)
	}
}

func decode(env *eventbus.Envelope, peers map[string]bool) (server.AuditEvent, bool) {
	var ev server.AuditEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return ev, false
	}
	if len(peers) > 0 && !peers[ev.Peer] {
		return ev, false
	}
	return ev, true
}

// printEvent выводит событие в читаемом формате
func printEvent(env *eventbus.Envelope, ev server.AuditEvent) {
	fmt.Printf("[%s] %s [%s] %s tick=%d peer=%s\n",
		env.Timestamp.Local().Format(timeFormat),
		env.Source,
		env.EventType,
		env.ID,
		ev.Tick,
		ev.Peer)

	if ev.Pos != nil {
		fmt.Printf("  Cell: (%d,%d,%d)", ev.Pos.X, ev.Pos.Y, ev.Pos.Z)
		if ev.Kind != "" {
			fmt.Printf(" Kind: %s", ev.Kind)
		}
		if ev.PartID != nil {
			fmt.Printf(" Part: %s", ev.PartID)
		}
		fmt.Println()
	}
	if ev.Error != "" {
		fmt.Printf("  Error: %s\n", ev.Error)
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
