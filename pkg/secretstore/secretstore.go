// Package secretstore 是签名密钥的加密存储（Badger 静态加密）。
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// 约定的键名
const (
	KeyMnemonic   = "mnemonic"
	KeyPrivateKey = "private_key"
)

// ErrNotOpened 使用了未打开的 Store
var ErrNotOpened = errors.New("secretstore: not opened")

// Store 加密由 Badger 选项提供（value log + key registry），这里只做 KV 封装。
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 字节；nil 表示不加密（仅测试用）
	ReadOnly      bool
	InMemory      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	path := opts.Path
	if opts.InMemory {
		path = ""
	}
	bopts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly).
		WithInMemory(opts.InMemory)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求开启 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(16 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("secretstore: open %s: %w", opts.Path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeKey(key string) ([]byte, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return nil, errors.New("secretstore: key is empty")
	}
	return []byte(k), nil
}

// GetString 返回值与是否存在
func (s *Store) GetString(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return "", false, err
	}
	var (
		out   string
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

func (s *Store) SetString(key, val string) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

func (s *Store) Delete(key string) error {
	if s == nil || s.db == nil {
		return ErrNotOpened
	}
	k, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// ParseKey 接受 32 字节的 hex（可带 0x）或 base64，空串返回 nil。
// 64 个 hex 字符优先按 hex 解析，避免被误当成 base64。
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
