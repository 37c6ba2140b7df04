package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/vaultgate/internal/wallet"
	"github.com/betbot/vaultgate/pkg/secretstore"
)

func main() {
	_ = godotenv.Load()

	var (
		dbPath    = flag.String("badger", getenv("VAULTGATE_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("VAULTGATE_SECRET_KEY", ""), "badger encryption key (32 bytes, base64 or hex)")
		kind      = flag.String("kind", secretstore.KeyMnemonic, "secret kind: mnemonic | private_key")
		path      = flag.String("path", getenv("VAULTGATE_DERIVATION_PATH", wallet.DefaultDerivationPath), "derivation path used to verify a mnemonic")
		force     = flag.Bool("force", false, "overwrite an existing secret")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(errors.New("secret key is required: set VAULTGATE_SECRET_KEY or pass -secret-key"))
	}
	if *kind != secretstore.KeyMnemonic && *kind != secretstore.KeyPrivateKey {
		fatal(fmt.Errorf("unknown -kind %q (mnemonic | private_key)", *kind))
	}

	if *kind == secretstore.KeyMnemonic {
		fmt.Fprintln(os.Stderr, "请输入助记词（12/15/18/21/24 个单词），输入完成后回车：")
	} else {
		fmt.Fprintln(os.Stderr, "请输入十六进制私钥，输入完成后回车：")
	}
	secret := readLine()
	if secret == "" {
		fatal(errors.New("secret is empty"))
	}

	// 写入前先验证能派生出签名地址
	var signer *wallet.Signer
	if *kind == secretstore.KeyMnemonic {
		signer, err = wallet.FromMnemonic(secret, *path)
	} else {
		signer, err = wallet.FromHex(secret)
	}
	if err != nil {
		fatal(err)
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o700); err != nil {
		fatal(fmt.Errorf("mkdir: %w", err))
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: *dbPath, EncryptionKey: keyBytes})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	if _, exists, err := ss.GetString(*kind); err != nil {
		fatal(err)
	} else if exists && !*force {
		fatal(fmt.Errorf("%s already exists in %s (use -force to overwrite)", *kind, *dbPath))
	}
	if err := ss.SetString(*kind, secret); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "已写入：%s (%s)\n", *dbPath, *kind)
	fmt.Println("signer_address:", signer.Address.Hex())
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
