package persistence

import (
	"encoding/json"
	"errors"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betbot/vaultgate/pkg/logger"
)

// BadgerOptions Badger 后端打开参数
type BadgerOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; 为空则不加密
	InMemory      bool
}

// BadgerService 基于 Badger 的持久化服务（单进程独占目录）。
type BadgerService struct {
	db *badger.DB
}

// OpenBadger 打开（或创建）Badger 数据库
func OpenBadger(opts BadgerOptions) (*BadgerService, error) {
	if strings.TrimSpace(opts.Path) == "" && !opts.InMemory {
		return nil, errors.New("persistence: badger path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithInMemory(opts.InMemory)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("")
	}
	if len(opts.EncryptionKey) > 0 {
		// Badger 加密模式要求开启 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &BadgerService{db: db}, nil
}

func (s *BadgerService) NewStore(prefix, id, tag string) Store {
	return &BadgerStore{db: s.db, key: []byte(storeKey(prefix, id, tag))}
}

func (s *BadgerService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BadgerStore 单个 key 的 JSON 值存储
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

func (s *BadgerStore) Save(data interface{}) error {
	logger.Debugf("[persistence] badger Save: key=%s", s.key)
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, b)
	})
}

func (s *BadgerStore) Load(data interface{}) error {
	logger.Debugf("[persistence] badger Load: key=%s", s.key)
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotExists
		}
		return err
	}
	if len(raw) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(raw, data)
}
