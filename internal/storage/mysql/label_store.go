package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LabelRecord 表示一次交易标注的落库结构。Label 字段保存后端
// 返回的完整 JSON 标签，ActionType 与 Protocol 冗余出来便于检索。
type LabelRecord struct {
	ID          int64  `json:"id"`
	TxHash      string `json:"tx_hash"`
	Description string `json:"description"`
	ActionType  string `json:"action_type"`
	Protocol    string `json:"protocol"`
	Label       string `json:"label"`
	Backend     string `json:"backend"`
	CreatedAt   int64  `json:"created_at"`
}

// LabelRepository 抽象标注历史的持久化接口。
type LabelRepository interface {
	Save(ctx context.Context, record *LabelRecord) error
	ListLatest(ctx context.Context, limit int) ([]LabelRecord, error)
	Close() error
}

// memoryCap 限制内存仓库保留的记录条数。
const memoryCap = 512

// MemoryLabelRepository 用本地 JSON 行文件模拟 MySQL 的效果，方便迭代开发。
type MemoryLabelRepository struct {
	mu       sync.RWMutex
	dataFile string
	nextID   int64
	records  []LabelRecord
}

// NewMemoryLabelRepository 创建一个文件落盘的内存仓库。
func NewMemoryLabelRepository(dataDir string) (*MemoryLabelRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryLabelRepository{
		dataFile: filepath.Join(dataDir, "labels.log"),
		nextID:   1,
	}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录标注结果，最新的记录排在前面。
func (m *MemoryLabelRepository) Save(_ context.Context, record *LabelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.nextID
	m.nextID++

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开标注日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化标注记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入标注日志失败: %w", err)
	}

	m.records = append([]LabelRecord{*record}, m.records...)
	if len(m.records) > memoryCap {
		m.records = m.records[:memoryCap]
	}
	return nil
}

// ListLatest 返回最近的标注记录，按时间倒序排列。
func (m *MemoryLabelRepository) ListLatest(_ context.Context, limit int) ([]LabelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]LabelRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close 实现 LabelRepository，内存仓库无资源可释放。
func (m *MemoryLabelRepository) Close() error { return nil }

func (m *MemoryLabelRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取标注日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []LabelRecord
	for scanner.Scan() {
		var record LabelRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID >= m.nextID {
			m.nextID = record.ID + 1
		}
		restored = append([]LabelRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析标注日志失败: %w", err)
	}

	if len(restored) > memoryCap {
		restored = restored[:memoryCap]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLLabelRepository 使用真实的 MySQL 数据库存储标注历史。
type SQLLabelRepository struct {
	db *sql.DB
}

// NewSQLLabelRepository 创建连接池并应用内嵌的 SQL 迁移。
func NewSQLLabelRepository(ctx context.Context, cfg Config) (*SQLLabelRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := &SQLLabelRepository{db: db}
	if err := repo.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Save 插入一条标注记录并回填自增 ID。
func (s *SQLLabelRepository) Save(ctx context.Context, record *LabelRecord) error {
	const stmt = `INSERT INTO labels
        (tx_hash, description, action_type, protocol, label, backend, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, stmt,
		record.TxHash, record.Description, record.ActionType,
		record.Protocol, record.Label, record.Backend, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("写入标注记录失败: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

// ListLatest 返回最近的标注记录，按时间倒序排列。
func (s *SQLLabelRepository) ListLatest(ctx context.Context, limit int) ([]LabelRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const stmt = `SELECT id, tx_hash, description, action_type, protocol, label, backend, created_at
        FROM labels ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("查询标注记录失败: %w", err)
	}
	defer rows.Close()

	var records []LabelRecord
	for rows.Next() {
		var record LabelRecord
		if err := rows.Scan(&record.ID, &record.TxHash, &record.Description,
			&record.ActionType, &record.Protocol, &record.Label,
			&record.Backend, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析标注记录失败: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历标注记录失败: %w", err)
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLLabelRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
