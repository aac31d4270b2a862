// Package network доставляет кадры синхронизации по KCP (надёжный UDP)
package network

import "time"

// FrameHandler получает кадр от узла from
type FrameHandler func(from string, frame []byte)

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	FramesSent     uint64    // Отправлено кадров
	FramesReceived uint64    // Получено кадров
	BytesSent      uint64    // Отправлено байт
	BytesReceived  uint64    // Получено байт
	LastActivity   time.Time // Последняя активность
	RemoteAddr     string    // Адрес удалённого узла
}

// TransportConfig содержит настройки KCP
type TransportConfig struct {
	BufferSize   int           // Очередь отправки на соединение, кадров
	MaxFrameSize int           // Предел длины кадра
	IdleTimeout  time.Duration // Отключение молчащего клиента
	DataShards   int           // FEC, 0: выключено
	ParityShards int
	MTU          int
	WindowSize   int
}

// DefaultTransportConfig возвращает конфигурацию по умолчанию
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		BufferSize:   1024,
		MaxFrameSize: 1 << 20,
		IdleTimeout:  30 * time.Second,
		MTU:          1400,
		WindowSize:   512,
	}
}
