// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package tapo implements the Tapo smart plug HTTP protocol. Two
// incompatible authentication schemes exist across firmware generations:
// KLAP (the current default) and the older secure-passthrough scheme. The
// Negotiator probes them in policy order and returns the first raw reading.
package tapo

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" // #nosec G505 -- the device protocol mandates SHA-1 credential digests
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Credentials are the TP-Link cloud account credentials shared by all Tapo
// devices of one deployment.
type Credentials struct {
	Username string
	Password string
}

// AuthMode selects which authentication schemes the negotiator may try.
type AuthMode string

const (
	// AuthAll tries the default scheme first and falls back to the legacy one.
	AuthAll AuthMode = "all"
	// AuthDefaultOnly tries only the KLAP scheme.
	AuthDefaultOnly AuthMode = "default_only"
	// AuthLegacyOnly tries only the secure-passthrough scheme.
	AuthLegacyOnly AuthMode = "legacy_only"
)

// ParseAuthMode validates an auth mode name. The empty string means AuthAll.
func ParseAuthMode(s string) (AuthMode, error) {
	switch AuthMode(s) {
	case "", AuthAll:
		return AuthAll, nil
	case AuthDefaultOnly:
		return AuthDefaultOnly, nil
	case AuthLegacyOnly:
		return AuthLegacyOnly, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

const maxResponseLen = 1 << 20

// deviceURL builds the device's application endpoint from a configured
// address.
func deviceURL(address string) string {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return strings.TrimSuffix(address, "/") + "/app"
}

// newHTTPClient creates a per-session HTTP client. The cookie jar carries
// the device's session cookie between handshake steps; sessions never
// outlive a single poll attempt.
func newHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: timeout, Jar: jar}
}

// post sends a raw POST body and returns the response body. Any non-200
// status is a failure.
func post(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// authHash derives the scheme-shared credential digest:
// sha256(sha1(username) || sha1(password)).
func authHash(creds Credentials) []byte {
	user := sha1.Sum([]byte(creds.Username)) // #nosec G401
	pass := sha1.Sum([]byte(creds.Password)) // #nosec G401
	return sha256Concat(user[:], pass[:])
}

// sha256Concat hashes the concatenation of the given parts.
func sha256Concat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// errorCode extracts the protocol-level error_code from a decoded response.
func errorCode(decoded map[string]any) int {
	if code, ok := decoded["error_code"].(float64); ok {
		return int(code)
	}
	return 0
}

// aesEncryptCBC encrypts PKCS#7-padded plaintext with AES-CBC.
func aesEncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// aesDecryptCBC decrypts AES-CBC ciphertext and strips PKCS#7 padding.
func aesDecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a block multiple", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	return data[:len(data)-n], nil
}

// hostOnly strips an explicit port for log output.
func hostOnly(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil {
		return host
	}
	return address
}
