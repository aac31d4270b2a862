package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/annel0/mmo-multipart/internal/multipart"
	"github.com/annel0/mmo-multipart/internal/multipart/parts"
	"github.com/annel0/mmo-multipart/internal/network"
	mpsync "github.com/annel0/mmo-multipart/internal/sync"
	"github.com/annel0/mmo-multipart/internal/vec"
	_ "github.com/annel0/mmo-multipart/internal/world/block/implementations"
)

func main() {
	var (
		addr     = flag.String("addr", "localhost:7777", "KCP адрес сервера")
		x        = flag.Int("x", 1, "X клетки")
		y        = flag.Int("y", 64, "Y клетки")
		z        = flag.Int("z", 1, "Z клетки")
		keep     = flag.Bool("keep", false, "не снимать установленные части")
		waitTime = flag.Duration("wait", time.Second, "ожидание ответа сервера")
	)
	flag.Parse()

	fmt.Println("=== ТЕСТОВЫЙ КЛИЕНТ МНОГОСОСТАВНЫХ КЛЕТОК ===")

	codec, err := mpsync.NewCodec(mpsync.DefaultCompressAbove)
	if err != nil {
		log.Fatalf("Ошибка создания кодека: %v", err)
	}
	defer codec.Close()

	ctx := context.Background()
	var (
		mu     sync.Mutex
		client *mpsync.Client
	)
	// реплика меняется из горутины чтения, печать идёт под той же блокировкой
	conn, err := network.DialKCP(*addr, network.DefaultTransportConfig(), func(_ string, frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		if client == nil {
			return
		}
		if err := client.HandleFrame(ctx, frame); err != nil {
			fmt.Printf("⚠️ Кадр не применён: %v\n", err)
		}
	})
	if err != nil {
		log.Fatalf("Ошибка подключения: %v", err)
	}
	defer conn.Close()
	mu.Lock()
	client = mpsync.NewClient(codec, conn, *addr)
	mu.Unlock()
	fmt.Println("✅ Подключен к серверу")

	pos := vec.Vec3{X: *x, Y: *y, Z: *z}

	// Тест 1: установка панелей на две грани
	fmt.Println("\n=== ТЕСТ 1: УСТАНОВКА ===")
	for _, face := range []vec.Face{vec.FaceNorth, vec.FaceSouth} {
		req := multipart.PlaceRequest{Pos: pos, Face: face, Kind: parts.CoverKind}
		if err := client.Place(ctx, req); err != nil {
			log.Fatalf("Ошибка отправки запроса: %v", err)
		}
	}
	// центральный проводник
	if err := client.Place(ctx, multipart.PlaceRequest{Pos: pos, Face: vec.FaceUp, Kind: parts.ConduitKind}); err != nil {
		log.Fatalf("Ошибка отправки запроса: %v", err)
	}
	time.Sleep(*waitTime)
	placed := printCell(&mu, client, pos)

	// Тест 2: повторный снимок
	fmt.Println("\n=== ТЕСТ 2: RESYNC ===")
	frame, err := codec.Encode(&mpsync.Resync{Pos: pos})
	if err != nil {
		log.Fatalf("Ошибка кодирования: %v", err)
	}
	if err := conn.Send(ctx, *addr, frame); err != nil {
		log.Fatalf("Ошибка отправки: %v", err)
	}
	time.Sleep(*waitTime)
	printCell(&mu, client, pos)

	if *keep {
		return
	}

	// Тест 3: снятие всех частей
	fmt.Println("\n=== ТЕСТ 3: СНЯТИЕ ===")
	for _, p := range placed {
		if err := client.Remove(ctx, pos, p.ID); err != nil {
			log.Fatalf("Ошибка отправки: %v", err)
		}
	}
	time.Sleep(*waitTime)
	printCell(&mu, client, pos)

	fmt.Println("\n=== ТЕСТИРОВАНИЕ ЗАВЕРШЕНО ===")
}

// printCell выводит содержимое клетки в реплике клиента
func printCell(mu *sync.Mutex, client *mpsync.Client, pos vec.Vec3) []multipart.PartDescription {
	mu.Lock()
	defer mu.Unlock()

	c := client.Replica().Container(pos)
	if c == nil {
		fmt.Printf("Клетка %s: нет контейнера (реплика: %d клеток)\n", pos, client.Replica().Len())
		return nil
	}
	desc := c.Describe()
	fmt.Printf("Клетка %s: %d частей\n", pos, len(desc))
	for _, d := range desc {
		fmt.Printf("  %-10s %-8s %s\n", d.Slot, d.Kind, d.ID)
	}
	return desc
}
