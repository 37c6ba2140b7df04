package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/betbot/vaultgate/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(prefix, id, tag string) Store
	Close() error
}

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = errors.New("persistence data not exists")

func storeKey(prefix, id, tag string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, id, tag)
}

// JSONFileService 基于 JSON 文件的持久化服务
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{
		baseDir: baseDir,
	}
}

// NewStore 创建新的存储
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &JSONFileStore{
		service: s,
		key:     storeKey(prefix, id, tag),
	}
}

func (s *JSONFileService) Close() error { return nil }

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *JSONFileStore) filePath() string {
	// key 形如 "state:<id>:<tag>"，这里做文件名安全化
	safe := keySanitizer.ReplaceAllString(s.key, "_")
	return filepath.Join(s.service.baseDir, safe+".json")
}

// Save 保存数据（先写临时文件再 rename，保证原子替换）
func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: key=%s", s.key)
	if err := os.MkdirAll(s.service.baseDir, 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	path := s.filePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load 加载数据
func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: key=%s", s.key)
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}

// MemoryService 进程内存储（测试 / 内存模式用），值以 JSON 形式保存以保持与文件后端一致的语义。
type MemoryService struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryService() *MemoryService {
	return &MemoryService{data: make(map[string][]byte)}
}

func (s *MemoryService) NewStore(prefix, id, tag string) Store {
	return &memoryStore{service: s, key: storeKey(prefix, id, tag)}
}

func (s *MemoryService) Close() error { return nil }

type memoryStore struct {
	service *MemoryService
	key     string
}

func (m *memoryStore) Save(data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.service.mu.Lock()
	m.service.data[m.key] = b
	m.service.mu.Unlock()
	return nil
}

func (m *memoryStore) Load(data interface{}) error {
	m.service.mu.Lock()
	b, ok := m.service.data[m.key]
	m.service.mu.Unlock()
	if !ok {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}
