package redisutil

import "testing"

func TestParseOptionsNoTLS(t *testing.T) {
	opts, err := ParseOptions("redis://localhost:6379")
	if err != nil {
		t.Fatalf("ParseOptions error: %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr: %s", opts.Addr)
	}
	if opts.TLSConfig != nil {
		t.Fatalf("expected no tls config")
	}
}

func TestParseOptionsInvalidURL(t *testing.T) {
	if _, err := ParseOptions("not-a-url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}

func TestParseOptionsInsecureTLS(t *testing.T) {
	t.Setenv(envRedisTLSInsecure, "true")
	opts, err := ParseOptions("redis://localhost:6379")
	if err != nil {
		t.Fatalf("ParseOptions error: %v", err)
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure tls config")
	}
}

func TestParseOptionsCertWithoutKey(t *testing.T) {
	t.Setenv(envRedisTLSCert, "/tmp/cert.pem")
	if _, err := ParseOptions("redis://localhost:6379"); err == nil {
		t.Fatalf("expected error when cert set without key")
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv(envRedisTLSInsecure, "ON")
	if !parseBoolEnv(envRedisTLSInsecure) {
		t.Fatalf("expected true for ON")
	}
	t.Setenv(envRedisTLSInsecure, "nope")
	if parseBoolEnv(envRedisTLSInsecure) {
		t.Fatalf("expected false for nope")
	}
}
