package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	searchEndpoint   = "/Catalog/Search"
	searchScid       = "4fc10100-5f7a-4470-899b-280835760c07"
	baseFilter       = "(contentType eq 'MarketplaceDurableCatalog_V1.2')"
	resolveChunkSize = 300
)

// tag filters keyed by search type; single-page types use the base
// catalog filter, paginating types walk every page of their filter.
var tagFilters = map[string]string{
	"texture": "tags/any(t: t eq 'resourcepack')",
	"mashup":  "tags/any(t: t eq 'mashup')",
	"addon":   "tags/any(t: t eq 'addon')",
	"persona": "(contentType eq 'PersonaDurable')",
	"capes":   "(displayProperties/pieceType eq 'persona_capes')",
	"hidden":  "tags/any(t: t eq 'hidden_offer')",
	"skin":    "tags/any(t: t eq 'skinpack')",
}

// SearchTypes lists the accepted search type names.
var SearchTypes = []string{"name", "texture", "mashup", "addon", "persona", "capes", "hidden", "skin", "newest"}

var uuidRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// ValidSearchType reports whether name is an accepted search type.
func ValidSearchType(name string) bool {
	for _, t := range SearchTypes {
		if t == name {
			return true
		}
	}
	return false
}

// ExtractIDFromURL pulls a catalog item uuid out of a storefront URL.
func ExtractIDFromURL(url string) string {
	return uuidRe.FindString(url)
}

type searchResponse struct {
	Count int               `json:"Count"`
	Items []json.RawMessage `json:"Items"`
}

type searchRequest struct {
	Count   bool   `json:"count"`
	Query   string `json:"query"`
	Filter  string `json:"filter"`
	OrderBy string `json:"orderBy"`
	Scid    string `json:"scid"`
	Select  string `json:"select"`
	Top     int    `json:"top"`
	Skip    int    `json:"skip"`
	Search  string `json:"search,omitempty"`
}

// searchRaw runs one catalog search call with session re-auth.
func (s *Session) searchRaw(ctx context.Context, req searchRequest) (*searchResponse, error) {
	req.Scid = searchScid
	var out searchResponse
	err := s.WithReauth(ctx, func() error {
		return s.Post(ctx, searchEndpoint, req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchByType searches the remote catalog. Single-page types (name,
// hidden, newest, skin) return at most top records; paginating types
// (texture, mashup, addon, persona, capes) walk every page. Name
// searches are further filtered so every query term appears in the
// en-US title.
func (s *Session) SearchByType(ctx context.Context, term, searchType string, top int) ([]json.RawMessage, error) {
	if !ValidSearchType(searchType) {
		return nil, fmt.Errorf("invalid search type %q", searchType)
	}
	if top <= 0 {
		top = 50
	}

	switch searchType {
	case "name", "hidden", "newest", "skin":
		req := searchRequest{
			Count:   true,
			Filter:  baseFilter,
			OrderBy: "creationDate DESC",
			Select:  "contents,images",
			Top:     top,
		}
		switch searchType {
		case "hidden":
			req.Filter += " and " + tagFilters["hidden"]
		case "skin":
			req.Filter += " and " + tagFilters["skin"]
		case "name":
			req.Search = fmt.Sprintf("%q", term)
		}
		resp, err := s.searchRaw(ctx, req)
		if err != nil {
			return nil, err
		}
		items := resp.Items
		if searchType == "name" && term != "" {
			items = filterByTitleTerms(items, term)
		}
		return items, nil

	default:
		filter := baseFilter + " and " + tagFilters[searchType]
		search := ""
		switch searchType {
		case "persona":
			filter = tagFilters["persona"]
			search = term
		case "capes":
			filter = tagFilters["capes"]
		}

		var all []json.RawMessage
		skip := 0
		pageSize := top
		for {
			resp, err := s.searchRaw(ctx, searchRequest{
				Count:   true,
				Filter:  filter,
				OrderBy: "creationDate DESC",
				Select:  "contents,images",
				Top:     pageSize,
				Skip:    skip,
				Search:  search,
			})
			if err != nil {
				return nil, err
			}
			all = append(all, resp.Items...)
			if len(resp.Items) < pageSize || len(all) >= resp.Count {
				break
			}
			skip += pageSize
			if remaining := resp.Count - skip; remaining < pageSize {
				pageSize = remaining
			}
		}
		return all, nil
	}
}

// ResolveRaw fetches raw records for the given ids in chunks, building an
// or-chain id filter per chunk.
func (s *Session) ResolveRaw(ctx context.Context, ids []string) (map[string]json.RawMessage, error) {
	results := make(map[string]json.RawMessage)
	for start := 0; start < len(ids); start += resolveChunkSize {
		end := start + resolveChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		clauses := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			clauses = append(clauses, fmt.Sprintf("Id eq '%s'", id))
		}
		resp, err := s.searchRaw(ctx, searchRequest{
			Count:   true,
			Filter:  strings.Join(clauses, " or "),
			OrderBy: "creationDate DESC",
			Select:  "contents,images",
			Top:     resolveChunkSize,
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Items {
			var probe struct {
				ID string `json:"Id"`
			}
			if err := json.Unmarshal(raw, &probe); err != nil || probe.ID == "" {
				continue
			}
			results[probe.ID] = raw
		}
	}
	return results, nil
}

// filterByTitleTerms keeps records whose en-US title contains every
// whitespace-separated term of the query.
func filterByTitleTerms(items []json.RawMessage, query string) []json.RawMessage {
	terms := strings.Fields(strings.ToLower(query))
	var kept []json.RawMessage
	for _, raw := range items {
		var probe struct {
			Title map[string]string `json:"Title"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		title := strings.ToLower(probe.Title["en-US"])
		matched := true
		for _, term := range terms {
			if !strings.Contains(title, term) {
				matched = false
				break
			}
		}
		if matched {
			kept = append(kept, raw)
		}
	}
	return kept
}
