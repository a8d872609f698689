package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
)

// ResolvedItem is a catalog item reduced to what the pipeline needs.
type ResolvedItem struct {
	ID      string
	Title   string
	Tags    []string
	Entries []Entry
}

// Resolver looks up a catalog item by identifier.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*ResolvedItem, error)
}

// Delivery is what the orchestrator hands to the transport layer: either
// a local processed artifact (Path set, inside the run-private Dir that
// the transport removes after streaming) or a raw passthrough URL.
type Delivery struct {
	Filename     string
	Path         string
	Dir          string
	RawURL       string
	Title        string
	ContentTypes []string
	TotalFiles   int
	Processed    bool
	Outcome      Outcome
}

// Orchestrator resolves items and runs assemble calls through a bounded
// worker pool so concurrent requests cannot exhaust disk or bandwidth.
type Orchestrator struct {
	Resolver  Resolver
	Assembler *Assembler
	Progress  *ProgressHub
	WorkDir   string
	OutDir    string

	slots chan struct{}
}

func NewOrchestrator(resolver Resolver, assembler *Assembler, workDir, outDir string, maxConcurrent int) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Orchestrator{
		Resolver:  resolver,
		Assembler: assembler,
		Progress:  NewProgressHub(),
		WorkDir:   workDir,
		OutDir:    outDir,
		slots:     make(chan struct{}, maxConcurrent),
	}
}

// Download resolves the item and either returns its first declared asset
// URL for raw passthrough or runs the full pipeline.
func (o *Orchestrator) Download(ctx context.Context, itemID string, process bool) (*Delivery, error) {
	item, err := o.Resolver.Resolve(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if len(item.Entries) == 0 {
		return nil, fmt.Errorf("%w for item %s", ErrNoContent, itemID)
	}

	types := DescribeContentTypes(item.Tags, item.Entries)
	delivery := &Delivery{
		Title:        item.Title,
		ContentTypes: types,
		TotalFiles:   len(item.Entries),
		Processed:    process,
	}

	if !process {
		delivery.RawURL = item.Entries[0].URL
		delivery.Filename = rawFilename(item.Title, types, len(item.Entries))
		return delivery, nil
	}

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.slots }()

	o.Progress.Publish(ProgressEvent{ItemID: itemID, Stage: "started", Message: item.Title})

	// Shallow copies so the per-run progress hook never races with
	// concurrent runs sharing the orchestrator.
	fetcher := *o.Assembler.Fetcher
	fetcher.Progress = func(downloaded, total int64) {
		o.Progress.Publish(ProgressEvent{ItemID: itemID, Stage: "downloading", Downloaded: downloaded, Total: total})
	}
	assembler := *o.Assembler
	assembler.Fetcher = &fetcher

	result, err := assembler.Assemble(ctx, Request{ItemID: item.ID, Title: item.Title, Entries: item.Entries}, o.WorkDir, o.OutDir)
	if err != nil {
		o.Progress.Publish(ProgressEvent{ItemID: itemID, Stage: "failed", Message: err.Error()})
		return nil, err
	}
	for _, failure := range result.Outcome.Failures {
		logging.Warn("orchestrator", "partial failure", "item", itemID,
			"unit", failure.Identifier, "error", failure.Message)
	}
	o.Progress.Publish(ProgressEvent{ItemID: itemID, Stage: "done", Message: result.Filename})

	delivery.Filename = result.Filename
	delivery.Path = result.Path
	delivery.Dir = result.Dir
	delivery.Outcome = result.Outcome
	return delivery, nil
}

// DescribeContentTypes renders human-readable type labels from the item's
// creator tags and declared asset kinds.
func DescribeContentTypes(tags []string, entries []Entry) []string {
	var types []string
	add := func(label string) {
		for _, t := range types {
			if t == label {
				return
			}
		}
		types = append(types, label)
	}
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		switch {
		case strings.Contains(lower, "skin"):
			add("Skin Pack")
		case strings.Contains(lower, "resource"), strings.Contains(lower, "texture"):
			add("Resource Pack")
		case strings.Contains(lower, "addon"), strings.Contains(lower, "behavior"):
			add("Add-On")
		case strings.Contains(lower, "world"), strings.Contains(lower, "map"):
			add("World")
		case strings.Contains(lower, "mashup"):
			add("Mashup Pack")
		}
	}
	for _, entry := range entries {
		if entry.Kind.IsSkin() {
			add("Skin Pack")
		}
	}
	if len(types) == 0 {
		if len(entries) > 1 {
			add("Mixed Content")
		} else {
			add("Content Pack")
		}
	}
	return types
}

func rawFilename(title string, types []string, totalFiles int) string {
	base := SanitizeTitle(title)
	if len(types) > 1 || totalFiles > 1 {
		return base + "_(" + SanitizeTitle(strings.Join(types, " + ")) + ").zip"
	}
	return base + ".zip"
}
