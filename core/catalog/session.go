package catalog

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lyssadev/MarkPEWeb/core/infra/config"
	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
)

const (
	defaultTitleID     = "20CA2"
	titleSharedSecret  = "S8RS53ZEIGMYTYG856U3U19AORWXQXF41J7FT3X9YCWAC7I35X"
	sessionUserAgent   = "libhttpclient/1.0.0.0"
	maxLoginAttempts   = 5
	errCodeNoAccount   = 1001
	errCodeRateLimited = 1199
)

// APIError is a non-200 response from the remote catalog service.
type APIError struct {
	Code       int    `json:"code"`
	Status     string `json:"status"`
	ErrorName  string `json:"error"`
	ErrorCode  int    `json:"errorCode"`
	Message    string `json:"errorMessage"`
	RetryAfter int    `json:"retryAfterSeconds"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog api error %d (%s): %s", e.ErrorCode, e.ErrorName, e.Message)
}

// IsUnauthorized reports whether the error is an expired/rejected session.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || strings.Contains(apiErr.ErrorName, "Unauthorized")
	}
	return false
}

// Session holds the authenticated state for the remote catalog service.
// Credentials persist in the settings store so a device identity survives
// restarts; the entity token lives only in memory.
type Session struct {
	Client  *http.Client
	TitleID string
	Store   *config.SettingsStore
	// URL overrides the derived title endpoint when set.
	URL string

	// sleep is swappable in tests.
	sleep func(time.Duration)

	mu          sync.Mutex
	entityToken string
}

func NewSession(titleID string, store *config.SettingsStore) *Session {
	if titleID == "" {
		titleID = defaultTitleID
	}
	return &Session{
		Client:  &http.Client{Timeout: 30 * time.Second},
		TitleID: titleID,
		Store:   store,
		sleep:   time.Sleep,
	}
}

// BaseURL returns the title-scoped API endpoint.
func (s *Session) BaseURL() string {
	if s.URL != "" {
		return s.URL
	}
	return "https://" + strings.ToLower(s.TitleID) + ".playfabapi.com"
}

// Post sends a signed-in request and decodes the data envelope into out.
func (s *Session) Post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	s.mu.Lock()
	token := s.entityToken
	s.mu.Unlock()
	headers := map[string]string{}
	if token != "" {
		headers["X-EntityToken"] = token
	}
	return s.post(ctx, endpoint, body, headers, out)
}

func (s *Session) post(ctx context.Context, endpoint string, body []byte, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL()+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", sessionUserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "en-US")
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != http.StatusOK {
		apiErr := &APIError{}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			return fmt.Errorf("catalog api returned code %d", envelope.Code)
		}
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// Login signs in with the stored device identity, creating an account on
// first use or when the remote reports the identity unknown. Rate limit
// responses are waited out, a bounded number of times.
func (s *Session) Login(ctx context.Context) error {
	settings, err := s.Store.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	customID := settings.CustomID
	playerSecret := settings.PlayerSecret
	createAccount := false
	if customID == "" {
		customID = newCustomID()
		createAccount = true
	}
	if playerSecret == "" {
		playerSecret = newPlayerSecret()
		createAccount = true
	}
	settings.CustomID = customID
	settings.PlayerSecret = playerSecret
	if err := s.Store.Save(settings); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}

	infoParams := map[string]any{
		"GetPlayerProfile":   true,
		"GetUserAccountInfo": true,
	}

	var login loginResult
	for attempt := 0; attempt < maxLoginAttempts; attempt++ {
		var err error
		if createAccount {
			err = s.loginCreate(ctx, customID, playerSecret, infoParams, &login)
		} else {
			err = s.loginExisting(ctx, customID, playerSecret, infoParams, &login)
		}
		if err == nil && login.EntityToken.EntityToken != "" {
			break
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode {
			case errCodeNoAccount:
				logging.Warn("catalog", "account not found, creating a new identity")
				customID = newCustomID()
				playerSecret = newPlayerSecret()
				createAccount = true
				settings.CustomID = customID
				settings.PlayerSecret = playerSecret
				if err := s.Store.Save(settings); err != nil {
					return fmt.Errorf("persist identity: %w", err)
				}
				continue
			case errCodeRateLimited:
				wait := apiErr.RetryAfter
				if wait <= 0 {
					wait = 5
				}
				logging.Warn("catalog", "login rate limited", "retry_after", wait)
				s.sleep(time.Duration(wait) * time.Second)
				continue
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn("catalog", "login attempt failed", "attempt", attempt+1, "error", err)
		s.sleep(2 * time.Second)
	}

	if login.EntityToken.EntityToken == "" {
		return fmt.Errorf("login failed after %d attempts", maxLoginAttempts)
	}

	s.mu.Lock()
	s.entityToken = login.EntityToken.EntityToken
	s.mu.Unlock()

	// upgrade to the master player account token
	var upgraded struct {
		EntityToken string `json:"EntityToken"`
	}
	err = s.Post(ctx, "/Authentication/GetEntityToken", map[string]any{
		"Entity": map[string]string{
			"Id":   login.PlayFabID,
			"Type": "master_player_account",
		},
	}, &upgraded)
	if err != nil {
		return fmt.Errorf("entity token upgrade: %w", err)
	}
	s.mu.Lock()
	s.entityToken = upgraded.EntityToken
	s.mu.Unlock()
	logging.Info("catalog", "session established")
	return nil
}

type loginResult struct {
	PlayFabID   string `json:"PlayFabId"`
	EntityToken struct {
		EntityToken string `json:"EntityToken"`
	} `json:"EntityToken"`
}

func (s *Session) loginCreate(ctx context.Context, customID, playerSecret string, infoParams map[string]any, out *loginResult) error {
	csp, err := s.titlePublicKey(ctx)
	if err != nil {
		return err
	}
	pub, err := parseCspBlob(csp)
	if err != nil {
		return err
	}
	toEncrypt, err := json.Marshal(map[string]string{
		"CustomId":     customID,
		"PlayerSecret": playerSecret,
	})
	if err != nil {
		return err
	}
	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, toEncrypt, nil)
	if err != nil {
		return fmt.Errorf("encrypt identity: %w", err)
	}

	payload := map[string]any{
		"CreateAccount":         true,
		"TitleId":               s.TitleID,
		"InfoRequestParameters": infoParams,
		"EncryptedRequest":      base64.StdEncoding.EncodeToString(ciphertext),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.post(ctx, "/Client/LoginWithCustomID", body, nil, out)
}

func (s *Session) loginExisting(ctx context.Context, customID, playerSecret string, infoParams map[string]any, out *loginResult) error {
	payload := map[string]any{
		"CustomId":              customID,
		"CreateAccount":         false,
		"TitleId":               s.TitleID,
		"InfoRequestParameters": infoParams,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000000") + "Z"
	headers := map[string]string{
		"X-PlayFab-Signature": signRequest(body, ts, playerSecret),
		"X-PlayFab-Timestamp": ts,
	}
	return s.post(ctx, "/Client/LoginWithCustomID", body, headers, out)
}

func (s *Session) titlePublicKey(ctx context.Context) ([]byte, error) {
	var data struct {
		RSAPublicKey string `json:"RSAPublicKey"`
	}
	err := s.Post(ctx, "/Client/GetTitlePublicKey", map[string]string{
		"TitleId":           s.TitleID,
		"TitleSharedSecret": titleSharedSecret,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("get title public key: %w", err)
	}
	return base64.StdEncoding.DecodeString(data.RSAPublicKey)
}

// WithReauth runs fn, and on an unauthorized failure re-logs-in once and
// retries before propagating the error.
func (s *Session) WithReauth(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !IsUnauthorized(err) {
		return err
	}
	logging.Warn("catalog", "session expired, re-authenticating")
	if loginErr := s.Login(ctx); loginErr != nil {
		return fmt.Errorf("re-authentication failed: %w", loginErr)
	}
	return fn()
}

// signRequest produces the request signature header value:
// base64(sha256(body + "." + timestamp + "." + playerSecret)).
func signRequest(body []byte, timestamp, playerSecret string) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte("."))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write([]byte(playerSecret))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// parseCspBlob extracts an RSA public key from a Microsoft CSP public key
// blob: little-endian exponent at 0x10, reversed modulus after 0x14.
func parseCspBlob(csp []byte) (*rsa.PublicKey, error) {
	if len(csp) < 0x14+1 {
		return nil, fmt.Errorf("csp blob too short: %d bytes", len(csp))
	}
	exponent := binary.LittleEndian.Uint32(csp[0x10:0x14])
	modulus := make([]byte, len(csp)-0x14)
	copy(modulus, csp[0x14:])
	for i, j := 0, len(modulus)-1; i < j; i, j = i+1, j-1 {
		modulus[i], modulus[j] = modulus[j], modulus[i]
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(exponent),
	}, nil
}

func newCustomID() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return "MCPF" + strings.ToUpper(hex.EncodeToString(buf))
}

func newPlayerSecret() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}
