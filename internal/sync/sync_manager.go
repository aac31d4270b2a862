package sync

import (
	"fmt"

	"github.com/annel0/mmo-multipart/internal/logging"
)

// Manager связывает кодек и трекер авторитетного узла
type Manager struct {
	codec   *Codec
	tracker *Tracker
}

// Config: параметры синхронизации
type Config struct {
	NodeID        string
	CompressAbove int
	Out           Channel
}

// NewManager создаёт кодек и трекер, отправляющий кадры в cfg.Out
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Out == nil {
		return nil, fmt.Errorf("sync: не задан канал отправки")
	}
	codec, err := NewCodec(cfg.CompressAbove)
	if err != nil {
		return nil, err
	}

	if cfg.CompressAbove >= 0 {
		logging.Info("🔄 SyncManager: zstd для кадров длиннее %d байт", cfg.CompressAbove)
	} else {
		logging.Info("🔄 SyncManager: сжатие отключено")
	}
	logging.Info("✅ SyncManager инициализирован: node=%s, канал=%T", cfg.NodeID, cfg.Out)

	return &Manager{codec: codec, tracker: NewTracker(codec, cfg.Out)}, nil
}

// Codec возвращает кодек кадров
func (sm *Manager) Codec() *Codec { return sm.codec }

// Tracker возвращает трекер изменений (он же слушатель контейнеров)
func (sm *Manager) Tracker() *Tracker { return sm.tracker }

// Decode разбирает входящий кадр клиента. Принимаются только клиентские сообщения.
func (sm *Manager) Decode(from string, frame []byte) (Message, error) {
	msg, err := sm.codec.Decode(frame)
	if err != nil {
		logging.LogProtocolError(from, err, frame)
		return nil, err
	}
	switch msg.Kind() {
	case MsgPlace, MsgRemove, MsgResync:
		return msg, nil
	}
	err = fmt.Errorf("%w: клиент прислал %s", ErrBadFrame, msg.Kind())
	logging.LogProtocolError(from, err, frame)
	return nil, err
}

// Stop освобождает ресурсы кодека
func (sm *Manager) Stop() {
	sm.codec.Close()
	logging.Info("🔄 SyncManager остановлен")
}
