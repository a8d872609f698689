package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lyssadev/MarkPEWeb/core/content"
	"github.com/lyssadev/MarkPEWeb/core/infra/cache"
)

func TestClientSearchNormalizesAndCaches(t *testing.T) {
	fake := &fakeCatalog{t: t, total: 2, pages: map[int][]json.RawMessage{
		0: {
			record(idA, "Skin Bundle", "skinpack"),
			record(idB, "Texture Pack", "texture"),
		},
	}}
	session := searchSession(t, fake)
	client := NewClient(session, cache.NewMemory(), nil)

	items, err := client.Search(context.Background(), "", "skin", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != idA || items[0].Title != "Skin Bundle" {
		t.Fatalf("first item = %+v", items[0])
	}
	if items[0].Kind != "skin_pack" {
		t.Fatalf("tags %v classified as %q, want skin_pack", items[0].Tags, items[0].Kind)
	}
	if items[1].Kind != "resource_pack" {
		t.Fatalf("texture item classified as %q, want resource_pack", items[1].Kind)
	}
	if len(items[0].Contents) != 1 || items[0].Contents[0].URL == "" {
		t.Fatalf("contents not mapped: %+v", items[0].Contents)
	}

	again, err := client.Search(context.Background(), "", "skin", 10)
	if err != nil {
		t.Fatalf("cached Search: %v", err)
	}
	if len(again) != 2 {
		t.Fatalf("cached result has %d items, want 2", len(again))
	}
	if len(fake.requests) != 1 {
		t.Fatalf("remote hit %d times, want cached second call", len(fake.requests))
	}
}

func TestClientSearchCacheKeyVariesByType(t *testing.T) {
	fake := &fakeCatalog{t: t, total: 1, pages: map[int][]json.RawMessage{
		0: {record(idA, "Solo", "addon")},
	}}
	session := searchSession(t, fake)
	client := NewClient(session, cache.NewMemory(), nil)

	if _, err := client.Search(context.Background(), "", "addon", 10); err != nil {
		t.Fatalf("Search addon: %v", err)
	}
	if _, err := client.Search(context.Background(), "", "newest", 10); err != nil {
		t.Fatalf("Search newest: %v", err)
	}
	if len(fake.requests) != 2 {
		t.Fatalf("remote hit %d times, want separate cache entries per type", len(fake.requests))
	}
}

func TestClientSearchSkipsInvalidRecords(t *testing.T) {
	broken, _ := json.Marshal(map[string]any{"Id": "not-a-uuid"})
	fake := &fakeCatalog{t: t, total: 2, pages: map[int][]json.RawMessage{
		0: {broken, record(idB, "Valid", "mashup")},
	}}
	session := searchSession(t, fake)
	client := NewClient(session, nil, nil)

	items, err := client.Search(context.Background(), "", "newest", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 1 || items[0].ID != idB {
		t.Fatalf("items = %+v, want only the valid record", items)
	}
}

func TestClientResolveAcceptsStorefrontURL(t *testing.T) {
	fake := &fakeCatalog{t: t, total: 1, pages: map[int][]json.RawMessage{
		0: {record(idA, "Linked Pack", "texture")},
	}}
	session := searchSession(t, fake)
	client := NewClient(session, nil, nil)

	resolved, err := client.Resolve(context.Background(), "https://www.minecraft.net/marketplace/pdp?id="+idA)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.ID != idA || resolved.Title != "Linked Pack" {
		t.Fatalf("resolved = %+v", resolved)
	}
	if len(resolved.Entries) != 1 {
		t.Fatalf("entries = %+v, want 1", resolved.Entries)
	}
	if !strings.Contains(fake.requests[0].Filter, idA) {
		t.Fatalf("resolve filter %q missing extracted id", fake.requests[0].Filter)
	}
}

func TestClientResolveUnknownID(t *testing.T) {
	fake := &fakeCatalog{t: t, total: 0, pages: map[int][]json.RawMessage{}}
	session := searchSession(t, fake)
	client := NewClient(session, nil, nil)

	_, err := client.Resolve(context.Background(), idC)
	if !errors.Is(err, content.ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestValidateRecord(t *testing.T) {
	if err := ValidateRecord(record(idA, "Fine", "addon")); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	if err := ValidateRecord(json.RawMessage(`{"Title":{"en-US":"No ID"}}`)); err == nil {
		t.Fatal("record without an id accepted")
	}
	if err := ValidateRecord(json.RawMessage(`{"Id":"nope"}`)); err == nil {
		t.Fatal("record with malformed id accepted")
	}
	if err := ValidateRecord(json.RawMessage(`{`)); err == nil {
		t.Fatal("truncated json accepted")
	}
}
