// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package tapo

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" // #nosec G505 -- the device protocol mandates SHA-1 credential digests
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/plugpower/plug-power-logger/pkg/errors"
	"github.com/plugpower/plug-power-logger/pkg/interfaces"
)

const (
	rsaKeyBits    = 1024 // fixed by the device firmware
	sessionKeyLen = 32
)

// PassthroughDialer speaks the legacy secure-passthrough scheme used by
// older Tapo firmware: an RSA handshake yields an AES session key, then a
// login_device call inside the encrypted envelope yields a request token.
type PassthroughDialer struct {
	creds   Credentials
	timeout time.Duration
}

// NewPassthroughDialer creates a dialer for the legacy scheme.
func NewPassthroughDialer(creds Credentials, timeout time.Duration) *PassthroughDialer {
	return &PassthroughDialer{creds: creds, timeout: timeout}
}

// Dial performs the RSA handshake and credential login.
func (d *PassthroughDialer) Dial(ctx context.Context, address string) (interfaces.DeviceConn, error) {
	base := deviceURL(address)
	client := newHTTPClient(d.timeout)

	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits) // #nosec G403 -- key size fixed by the device firmware
	if err != nil {
		return nil, fmt.Errorf("generate handshake key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode handshake key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	handshake := map[string]any{
		"method": "handshake",
		"params": map[string]any{
			"key": string(pubPEM),
		},
		"requestTimeMils": time.Now().UnixMilli(),
	}
	result, err := postJSON(ctx, client, base, handshake)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	wrapped, ok := result["key"].(string)
	if !ok {
		return nil, fmt.Errorf("handshake: response carries no session key")
	}
	encrypted, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("handshake: decode session key: %w", err)
	}
	sessionKey, err := rsa.DecryptPKCS1v15(nil, key, encrypted)
	if err != nil {
		return nil, fmt.Errorf("handshake: unwrap session key: %w", err)
	}
	if len(sessionKey) != sessionKeyLen {
		return nil, fmt.Errorf("handshake: session key is %d bytes, want %d", len(sessionKey), sessionKeyLen)
	}

	conn := &passthroughConn{
		client: client,
		base:   base,
		key:    sessionKey[:16],
		iv:     sessionKey[16:32],
	}

	if err := conn.login(ctx, d.creds); err != nil {
		return nil, err
	}
	return conn, nil
}

// passthroughConn is an established legacy session.
type passthroughConn struct {
	client *http.Client
	base   string
	key    []byte
	iv     []byte
	token  string
}

// login exchanges credentials for the per-session request token. The
// username travels as base64 of the hex SHA-1 digest, the password as
// plain base64, matching the firmware's expectations.
func (c *passthroughConn) login(ctx context.Context, creds Credentials) error {
	userDigest := sha1.Sum([]byte(creds.Username)) // #nosec G401
	request := map[string]any{
		"method": "login_device",
		"params": map[string]any{
			"username": base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(userDigest[:]))),
			"password": base64.StdEncoding.EncodeToString([]byte(creds.Password)),
		},
		"requestTimeMils": time.Now().UnixMilli(),
	}

	decoded, err := c.execute(ctx, request)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	result, _ := decoded["result"].(map[string]any)
	token, ok := result["token"].(string)
	if !ok || token == "" {
		return fmt.Errorf("login: %w", errors.ErrAuthRejected)
	}
	c.token = token
	return nil
}

// ReadUsage issues get_energy_usage inside the encrypted envelope and
// returns the decoded inner response object.
func (c *passthroughConn) ReadUsage(ctx context.Context) (interfaces.RawUsage, error) {
	request := map[string]any{
		"method":          "get_energy_usage",
		"requestTimeMils": time.Now().UnixMilli(),
	}
	decoded, err := c.execute(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}
	return decoded, nil
}

// Close releases the session's idle connections. The firmware expires the
// token on its own.
func (c *passthroughConn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// execute wraps an inner request in a securePassthrough envelope, sends it
// and returns the decoded inner response.
func (c *passthroughConn) execute(ctx context.Context, inner map[string]any) (map[string]any, error) {
	plaintext, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	ciphertext, err := aesEncryptCBC(c.key, c.iv, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt request: %w", err)
	}

	envelope := map[string]any{
		"method": "securePassthrough",
		"params": map[string]any{
			"request": base64.StdEncoding.EncodeToString(ciphertext),
		},
	}

	url := c.base
	if c.token != "" {
		url += "?token=" + c.token
	}
	result, err := postJSON(ctx, c.client, url, envelope)
	if err != nil {
		return nil, err
	}

	wrapped, ok := result["response"].(string)
	if !ok {
		return nil, fmt.Errorf("envelope carries no response")
	}
	encrypted, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	decrypted, err := aesDecryptCBC(c.key, c.iv, encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt response: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(decrypted, &decoded); err != nil {
		return nil, fmt.Errorf("decode inner response: %w", err)
	}
	if code := errorCode(decoded); code != 0 {
		return nil, fmt.Errorf("device returned error_code %d", code)
	}
	return decoded, nil
}

// postJSON sends a JSON request and returns the "result" object of the
// decoded reply after checking its error_code.
func postJSON(ctx context.Context, client *http.Client, url string, request map[string]any) (map[string]any, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	data, err := post(ctx, client, url, body)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if code := errorCode(decoded); code != 0 {
		return nil, fmt.Errorf("device returned error_code %d", code)
	}

	result, _ := decoded["result"].(map[string]any)
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}
