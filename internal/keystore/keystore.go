// Package keystore stores the settlement fee payer's private key at rest,
// encrypted with a password-derived key.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters. The key is decrypted once at startup, so the
	// memory-hard setting costs one slow derivation per process.
	scryptN      = 1 << 18
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12

	fileExt = ".spk"
)

// File is the on-disk keystore structure. Address is stored in the clear so
// operators can identify the fee payer without the password.
type File struct {
	Chain      string `json:"chain"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// Save encrypts the fee payer key and writes it to path. Refuses to
// overwrite a non-empty file.
// password must be []byte for security (caller should zero it after use)
func Save(path, chain string, key solana.PrivateKey, password []byte) error {
	if !strings.HasSuffix(path, fileExt) {
		return fmt.Errorf("file must have %s extension", fileExt)
	}
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return fmt.Errorf("file is not empty: %w", os.ErrExist)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(password, salt)
	if err != nil {
		return err
	}

	plaintext := []byte(key.String())
	defer clear(plaintext)
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	file := File{
		Chain:      chain,
		Address:    key.PublicKey().String(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore file: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Load reads and decrypts the fee payer key from path.
// password must be []byte for security (caller should zero it after use)
func Load(path string, password []byte) (solana.PrivateKey, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(file.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.CipherText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	aesGCM, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("invalid password")
	}
	defer clear(plaintext)

	key, err := solana.PrivateKeyFromBase58(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored key: %w", err)
	}
	if file.Address != "" && file.Address != key.PublicKey().String() {
		return nil, errors.New("stored address does not match decrypted key")
	}
	return key, nil
}

// ReadAddress reads only the fee payer address from path (without decryption)
func ReadAddress(path string) (string, error) {
	file, err := readFile(path)
	if err != nil {
		return "", err
	}
	return file.Address, nil
}

func readFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file does not exist")
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return nil, errors.New("file is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	// Skip UTF-8 BOM if present
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keystore file: %w", err)
	}
	return &file, nil
}

func newGCM(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
