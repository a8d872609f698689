package catalog

import (
	"github.com/lyssadev/MarkPEWeb/core/content"
)

// Image is one media asset attached to a catalog record.
type Image struct {
	Type string `json:"Type"`
	URL  string `json:"Url"`
}

// Item is a normalized catalog record. Immutable once built.
type Item struct {
	ID                string
	Title             string
	Titles            map[string]string
	Tags              []string
	Kind              string
	Contents          []content.Entry
	Images            []Image
	DisplayProperties map[string]any
}

// rawItem mirrors the remote record shape before normalization.
type rawItem struct {
	ID                string            `json:"Id"`
	Title             map[string]string `json:"Title"`
	Tags              []string          `json:"Tags"`
	Contents          []rawContent      `json:"Contents"`
	Images            []Image           `json:"Images"`
	DisplayProperties map[string]any    `json:"DisplayProperties"`
}

type rawContent struct {
	Type string `json:"Type"`
	URL  string `json:"Url"`
}
