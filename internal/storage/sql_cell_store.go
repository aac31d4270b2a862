package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/annel0/mmo-multipart/internal/logging"
	"github.com/annel0/mmo-multipart/internal/vec"
	"github.com/annel0/mmo-multipart/internal/world"
)

// MariaConfig: параметры подключения к MariaDB/MySQL
type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DSN собирает строку подключения драйвера mysql
func (c MariaConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// SQLCellStore хранит клетки в SQL-таблице multipart_cells: строка на непустую клетку,
// содержимое: JSON записи. Чанк читается по индексу (cx, cz).
// Запросы переносимы между MariaDB и SQLite.
type SQLCellStore struct {
	db        *sql.DB
	opTimeout time.Duration
}

// NewMariaCellStore подключается к MariaDB и создаёт таблицу, если её нет
func NewMariaCellStore(cfg MariaConfig) (*SQLCellStore, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	store, err := NewSQLCellStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logging.GetStorageLogger().Info("🗄️ Клетки хранятся в MariaDB %s/%s", cfg.Host, cfg.Database)
	return store, nil
}

// NewSQLCellStore создаёт хранилище поверх открытого соединения
func NewSQLCellStore(db *sql.DB) (*SQLCellStore, error) {
	s := &SQLCellStore{db: db, opTimeout: 5 * time.Second}
	if err := s.createTable(); err != nil {
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return s, nil
}

func (s *SQLCellStore) createTable() error {
	queries := []string{`
		CREATE TABLE IF NOT EXISTS multipart_cells (
			x          BIGINT      NOT NULL,
			y          BIGINT      NOT NULL,
			z          BIGINT      NOT NULL,
			cx         BIGINT      NOT NULL,
			cz         BIGINT      NOT NULL,
			kind       VARCHAR(16) NOT NULL,
			data       MEDIUMTEXT  NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (x, y, z)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_multipart_cells_chunk ON multipart_cells (cx, cz)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("ошибка создания таблицы multipart_cells: %w", err)
		}
	}
	return nil
}

// SaveChunkCells заменяет клетки чанка в одной транзакции
func (s *SQLCellStore) SaveChunkCells(coords vec.Vec2, records []world.CellRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM multipart_cells WHERE cx = ? AND cz = ?`, coords.X, coords.Y); err != nil {
		return fmt.Errorf("ошибка очистки чанка %v: %w", coords, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO multipart_cells (x, y, z, cx, cz, kind, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.Pos.ToChunkCoords() != coords {
			return fmt.Errorf("клетка %s не принадлежит чанку %v", rec.Pos, coords)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("ошибка сериализации клетки %s: %w", rec.Pos, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.Pos.X, rec.Pos.Y, rec.Pos.Z, coords.X, coords.Y, rec.Kind, string(data)); err != nil {
			return fmt.Errorf("ошибка сохранения клетки %s: %w", rec.Pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	logging.GetStorageLogger().Debug("💾 Чанк %v сохранён в SQL: %d клеток", coords, len(records))
	return nil
}

// LoadChunkCells читает клетки чанка. Отсутствующий чанк: пустой список.
func (s *SQLCellStore) LoadChunkCells(coords vec.Vec2) ([]world.CellRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM multipart_cells WHERE cx = ? AND cz = ? ORDER BY x, y, z`, coords.X, coords.Y)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения чанка %v: %w", coords, err)
	}
	defer rows.Close()

	var records []world.CellRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec world.CellRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("ошибка десериализации клетки чанка %v: %w", coords, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LoadCell читает одну клетку
func (s *SQLCellStore) LoadCell(pos vec.Vec3) (world.CellRecord, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM multipart_cells WHERE x = ? AND y = ? AND z = ?`, pos.X, pos.Y, pos.Z).Scan(&data)
	if err == sql.ErrNoRows {
		return world.CellRecord{}, false, nil
	}
	if err != nil {
		return world.CellRecord{}, false, fmt.Errorf("ошибка чтения клетки %s: %w", pos, err)
	}

	var rec world.CellRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return world.CellRecord{}, false, fmt.Errorf("ошибка десериализации клетки %s: %w", pos, err)
	}
	return rec, true, nil
}

// Close закрывает соединение с базой данных
func (s *SQLCellStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
