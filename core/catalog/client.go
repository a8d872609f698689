package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lyssadev/MarkPEWeb/core/content"
	"github.com/lyssadev/MarkPEWeb/core/infra/cache"
	"github.com/lyssadev/MarkPEWeb/core/infra/config"
	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
)

const defaultSearchTTL = 5 * time.Minute

// Client wraps a catalog session with result caching and record
// normalization. It implements content.Resolver.
type Client struct {
	Session *Session
	Cache   cache.SearchCache
	Rules   *config.RuleTable
	TTL     time.Duration
}

// NewClient builds a Client with the default search TTL and rule table.
func NewClient(session *Session, c cache.SearchCache, rules *config.RuleTable) *Client {
	if rules == nil {
		rules = config.DefaultRules()
	}
	return &Client{Session: session, Cache: c, Rules: rules, TTL: defaultSearchTTL}
}

// Search runs a typed catalog search, serving repeated queries from the
// cache. Results are normalized Items.
func (c *Client) Search(ctx context.Context, term, searchType string, top int) ([]Item, error) {
	key := fmt.Sprintf("%s|%s|%d", searchType, strings.ToLower(term), top)
	if c.Cache != nil {
		if raw, ok, err := c.Cache.Get(ctx, key); err == nil && ok {
			var items []Item
			if err := json.Unmarshal(raw, &items); err == nil {
				return items, nil
			}
			logging.Warn("catalog", "discarding undecodable cache entry", "key", key)
		}
	}

	records, err := c.Session.SearchByType(ctx, term, searchType, top)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(records))
	for _, record := range records {
		item, err := c.normalize(record)
		if err != nil {
			logging.Warn("catalog", "skipping malformed search record", "error", err)
			continue
		}
		items = append(items, *item)
	}

	if c.Cache != nil {
		if raw, err := json.Marshal(items); err == nil {
			ttl := c.TTL
			if ttl <= 0 {
				ttl = defaultSearchTTL
			}
			if err := c.Cache.Set(ctx, key, raw, ttl); err != nil {
				logging.Warn("catalog", "search cache write failed", "error", err)
			}
		}
	}
	return items, nil
}

// ResolveItem fetches and normalizes a single catalog record.
func (c *Client) ResolveItem(ctx context.Context, id string) (*Item, error) {
	if extracted := ExtractIDFromURL(id); extracted != "" {
		id = extracted
	}
	records, err := c.Session.ResolveRaw(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	record, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("catalog item %s: %w", id, content.ErrNoContent)
	}
	return c.normalize(record)
}

// Resolve implements content.Resolver.
func (c *Client) Resolve(ctx context.Context, id string) (*content.ResolvedItem, error) {
	item, err := c.ResolveItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return &content.ResolvedItem{
		ID:      item.ID,
		Title:   item.Title,
		Tags:    item.Tags,
		Entries: item.Contents,
	}, nil
}

// normalize validates a raw record and maps it into an Item.
func (c *Client) normalize(record json.RawMessage) (*Item, error) {
	if err := ValidateRecord(record); err != nil {
		return nil, err
	}
	var raw rawItem
	if err := json.Unmarshal(record, &raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	entries := make([]content.Entry, 0, len(raw.Contents))
	for _, rc := range raw.Contents {
		if rc.URL == "" {
			continue
		}
		entries = append(entries, content.Entry{Kind: content.Kind(rc.Type), URL: rc.URL})
	}
	return &Item{
		ID:                raw.ID,
		Title:             raw.Title["en-US"],
		Titles:            raw.Title,
		Tags:              raw.Tags,
		Kind:              c.Rules.Classify(raw.Tags),
		Contents:          entries,
		Images:            raw.Images,
		DisplayProperties: raw.DisplayProperties,
	}, nil
}
