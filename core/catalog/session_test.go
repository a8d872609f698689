package catalog

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lyssadev/MarkPEWeb/core/infra/config"
)

// fakeTitle is an in-memory stand-in for the remote title service.
type fakeTitle struct {
	t   *testing.T
	key *rsa.PrivateKey

	mu            sync.Mutex
	createdIDs    []string
	existingCalls int
	// failExistingWith, when set, is returned for existing-identity
	// logins until cleared.
	failExistingWith *APIError
	lastSignature    string
	lastTimestamp    string
}

func newFakeTitle(t *testing.T) *fakeTitle {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &fakeTitle{t: t, key: key}
}

func (f *fakeTitle) cspBlob() []byte {
	mod := f.key.PublicKey.N.Bytes()
	rev := make([]byte, len(mod))
	for i := range mod {
		rev[i] = mod[len(mod)-1-i]
	}
	blob := make([]byte, 0x14+len(rev))
	binary.LittleEndian.PutUint32(blob[0x10:0x14], uint32(f.key.PublicKey.E))
	copy(blob[0x14:], rev)
	return blob
}

func writeEnvelope(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": data})
}

func writeAPIError(w http.ResponseWriter, apiErr *APIError) {
	w.WriteHeader(apiErr.Code)
	json.NewEncoder(w).Encode(apiErr)
}

func (f *fakeTitle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Client/GetTitlePublicKey", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]string{
			"RSAPublicKey": base64.StdEncoding.EncodeToString(f.cspBlob()),
		})
	})
	mux.HandleFunc("POST /Client/LoginWithCustomID", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			f.t.Errorf("decode login payload: %v", err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if enc, ok := payload["EncryptedRequest"]; ok {
			var b64 string
			json.Unmarshal(enc, &b64)
			ciphertext, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				f.t.Errorf("decode encrypted request: %v", err)
			}
			plain, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, f.key, ciphertext, nil)
			if err != nil {
				f.t.Errorf("decrypt identity: %v", err)
			}
			var identity struct {
				CustomID string `json:"CustomId"`
			}
			json.Unmarshal(plain, &identity)
			f.createdIDs = append(f.createdIDs, identity.CustomID)
		} else {
			f.existingCalls++
			f.lastSignature = r.Header.Get("X-PlayFab-Signature")
			f.lastTimestamp = r.Header.Get("X-PlayFab-Timestamp")
			if f.failExistingWith != nil {
				apiErr := f.failExistingWith
				f.failExistingWith = nil
				writeAPIError(w, apiErr)
				return
			}
		}
		writeEnvelope(w, map[string]any{
			"PlayFabId":   "PF123",
			"EntityToken": map[string]string{"EntityToken": "title-token"},
		})
	})
	mux.HandleFunc("POST /Authentication/GetEntityToken", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-EntityToken"); got != "title-token" {
			f.t.Errorf("entity token upgrade sent token %q", got)
		}
		writeEnvelope(w, map[string]string{"EntityToken": "master-token"})
	})
	return mux
}

func newTestSession(t *testing.T, f *fakeTitle) (*Session, *config.SettingsStore) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	store := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"))
	session := NewSession("20CA2", store)
	session.URL = srv.URL
	session.sleep = func(time.Duration) {}
	return session, store
}

func TestLoginCreatesAccountOnFirstUse(t *testing.T) {
	fake := newFakeTitle(t)
	session, store := newTestSession(t, fake)

	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.entityToken != "master-token" {
		t.Fatalf("entity token = %q, want upgraded master token", session.entityToken)
	}
	if len(fake.createdIDs) != 1 {
		t.Fatalf("created %d accounts, want 1", len(fake.createdIDs))
	}
	if !strings.HasPrefix(fake.createdIDs[0], "MCPF") {
		t.Fatalf("custom id %q missing MCPF prefix", fake.createdIDs[0])
	}

	settings, err := store.Load()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.CustomID != fake.createdIDs[0] {
		t.Fatalf("persisted id %q, server saw %q", settings.CustomID, fake.createdIDs[0])
	}
	if settings.PlayerSecret == "" {
		t.Fatal("player secret not persisted")
	}
}

func TestLoginExistingIdentitySignsRequest(t *testing.T) {
	fake := newFakeTitle(t)
	session, store := newTestSession(t, fake)
	if err := store.Save(config.Settings{
		CustomID:     "MCPFDEADBEEF",
		PlayerSecret: "c2VjcmV0",
	}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if fake.existingCalls != 1 {
		t.Fatalf("existing-login calls = %d, want 1", fake.existingCalls)
	}
	if len(fake.createdIDs) != 0 {
		t.Fatalf("created %d accounts for a known identity", len(fake.createdIDs))
	}
	if fake.lastSignature == "" || fake.lastTimestamp == "" {
		t.Fatal("signed login missing signature headers")
	}
}

func TestLoginRecreatesUnknownIdentity(t *testing.T) {
	fake := newFakeTitle(t)
	fake.failExistingWith = &APIError{
		Code: 400, ErrorName: "AccountNotFound", ErrorCode: 1001,
	}
	session, store := newTestSession(t, fake)
	if err := store.Save(config.Settings{
		CustomID:     "MCPFSTALE",
		PlayerSecret: "c3RhbGU=",
	}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(fake.createdIDs) != 1 {
		t.Fatalf("created %d accounts, want 1 replacement", len(fake.createdIDs))
	}
	settings, _ := store.Load()
	if settings.CustomID == "MCPFSTALE" {
		t.Fatal("stale identity not replaced in settings")
	}
}

func TestLoginWaitsOutRateLimit(t *testing.T) {
	fake := newFakeTitle(t)
	fake.failExistingWith = &APIError{
		Code: 429, ErrorName: "APIRequestLimitExceeded", ErrorCode: 1199, RetryAfter: 7,
	}
	session, store := newTestSession(t, fake)
	if err := store.Save(config.Settings{
		CustomID:     "MCPFBUSY",
		PlayerSecret: "YnVzeQ==",
	}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	var slept []time.Duration
	session.sleep = func(d time.Duration) { slept = append(slept, d) }

	if err := session.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Fatalf("slept %v, want one 7s wait", slept)
	}
	if fake.existingCalls != 2 {
		t.Fatalf("existing-login calls = %d, want retry after rate limit", fake.existingCalls)
	}
}

func TestWithReauthRetriesOnceAfterRelogin(t *testing.T) {
	fake := newFakeTitle(t)
	session, _ := newTestSession(t, fake)

	calls := 0
	err := session.WithReauth(context.Background(), func() error {
		calls++
		if calls == 1 {
			return &APIError{Code: 401, ErrorName: "Unauthorized"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithReauth: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2", calls)
	}
	if session.entityToken != "master-token" {
		t.Fatal("re-login did not refresh the entity token")
	}
}

func TestWithReauthPropagatesOtherErrors(t *testing.T) {
	session := NewSession("20CA2", nil)
	wantErr := errors.New("network down")
	calls := 0
	err := session.WithReauth(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want no retry", calls)
	}
}

func TestSignRequestFormat(t *testing.T) {
	got := signRequest([]byte(`{"a":1}`), "2024-01-01T00:00:00.000000Z", "secret")
	// base64(sha256(body + "." + ts + "." + secret))
	want := "8yOLrB/1btv0GDvmry2LYLS1ldpOfDJiS7to1eqXgR8="
	if got != want {
		t.Fatalf("signRequest = %q, want %q", got, want)
	}
}

func TestParseCspBlobRoundTrip(t *testing.T) {
	fake := newFakeTitle(t)
	pub, err := parseCspBlob(fake.cspBlob())
	if err != nil {
		t.Fatalf("parseCspBlob: %v", err)
	}
	if pub.N.Cmp(fake.key.PublicKey.N) != 0 {
		t.Fatal("modulus mismatch after blob round trip")
	}
	if pub.E != fake.key.PublicKey.E {
		t.Fatalf("exponent = %d, want %d", pub.E, fake.key.PublicKey.E)
	}
}

func TestParseCspBlobTooShort(t *testing.T) {
	if _, err := parseCspBlob(make([]byte, 8)); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(&APIError{Code: 401}) {
		t.Fatal("401 should be unauthorized")
	}
	if !IsUnauthorized(&APIError{Code: 400, ErrorName: "NotAuthenticatedUnauthorized"}) {
		t.Fatal("unauthorized error name should match")
	}
	if IsUnauthorized(errors.New("boom")) {
		t.Fatal("plain errors are not unauthorized")
	}
}
