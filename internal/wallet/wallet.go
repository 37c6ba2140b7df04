// Package wallet 从私钥、助记词或加密密钥库加载链上签名密钥。
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/betbot/vaultgate/pkg/secretstore"
)

// DefaultDerivationPath 以太坊第一个账户
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// Signer 签名密钥及其地址
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// FromHex 解析十六进制私钥（可带 0x 前缀）。
func FromHex(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// FromMnemonic 按派生路径从助记词派生，路径为空时使用 DefaultDerivationPath。
func FromMnemonic(mnemonic, derivationPath string) (*Signer, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	derivationPath = strings.TrimSpace(derivationPath)
	if mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation_path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("private key failed: %w", err)
	}
	return &Signer{Key: key, Address: acct.Address}, nil
}

// Load 优先使用私钥，其次助记词。
func Load(privateKeyHex, mnemonic, derivationPath string) (*Signer, error) {
	if strings.TrimSpace(privateKeyHex) != "" {
		return FromHex(privateKeyHex)
	}
	if strings.TrimSpace(mnemonic) != "" {
		return FromMnemonic(mnemonic, derivationPath)
	}
	return nil, fmt.Errorf("either private key or mnemonic is required")
}

// FromSecretStore 从加密 badger 密钥库读取签名密钥：优先 private_key，其次 mnemonic。
func FromSecretStore(path, rawKey, derivationPath string) (*Signer, error) {
	key, err := secretstore.ParseKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("secret key is required to open %s", path)
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: path, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer ss.Close()

	pk, ok, err := ss.GetString(secretstore.KeyPrivateKey)
	if err != nil {
		return nil, err
	}
	if ok && strings.TrimSpace(pk) != "" {
		return FromHex(pk)
	}
	mn, ok, err := ss.GetString(secretstore.KeyMnemonic)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(mn) == "" {
		return nil, fmt.Errorf("no %s or %s found in %s", secretstore.KeyPrivateKey, secretstore.KeyMnemonic, path)
	}
	return FromMnemonic(mn, derivationPath)
}
