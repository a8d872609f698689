package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lyssadev/MarkPEWeb/core/infra/logging"
	"github.com/lyssadev/MarkPEWeb/core/infra/metrics"
	"github.com/lyssadev/MarkPEWeb/core/keys"
)

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*]`)

// Assembler drives the content pipeline for one catalog item: fetch each
// declared asset, unpack it, classify the extracted packs, route them to
// the kind-specific packagers, and bundle multiple outputs into one
// combined archive. Per-unit failures are accumulated, never thrown; only
// a run that produces nothing at all becomes an error.
type Assembler struct {
	Fetcher *Fetcher
	Skin    SkinPackager
	Batch   BatchPackager
	Ring    *keys.Ring
	Metrics metrics.PipelineMetrics

	// unpack is swappable in tests.
	unpack func(string) ([]ExtractedPack, error)
}

func NewAssembler(fetcher *Fetcher, ring *keys.Ring) *Assembler {
	return &Assembler{
		Fetcher: fetcher,
		Skin:    ZipSkinPackager{},
		Batch:   ArchiveBatchPackager{},
		Ring:    ring,
		Metrics: metrics.Noop{},
		unpack:  Unpack,
	}
}

// Result is the deliverable of one assemble run. Dir is the run's
// private output folder; the caller removes it once Path has been
// delivered.
type Result struct {
	Filename string
	Path     string
	Dir      string
	Outcome  Outcome
}

// Assemble runs the pipeline for req. Intermediate downloads live in a
// private subfolder of workDir and are always removed on exit; produced
// files land in a private subfolder of outDir (Result.Dir) that survives
// until the caller delivers them, so concurrent runs never see each
// other's outputs and repeat runs start from a clean folder.
func (a *Assembler) Assemble(ctx context.Context, req Request, workDir, outDir string) (*Result, error) {
	start := time.Now()
	result, err := a.assemble(ctx, req, workDir, outDir)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	a.Metrics.IncRunCompleted(status)
	a.Metrics.ObserveRunDuration(time.Since(start).Seconds())
	return result, err
}

func (a *Assembler) assemble(ctx context.Context, req Request, workDir, outDir string) (*Result, error) {
	runID := strings.ReplaceAll(uuid.NewString(), "-", "")
	runOut := filepath.Join(outDir, "run-"+runID)
	if err := os.MkdirAll(runOut, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}
	delivered := false
	defer func() {
		if !delivered {
			os.RemoveAll(runOut)
		}
	}()
	downloadDir := filepath.Join(workDir, "run-"+runID)
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working folder: %w", err)
	}
	defer os.RemoveAll(downloadDir)

	hasKey := a.Ring.HasAny(req.ItemID)
	logging.Info("assembler", "key availability", "item", req.ItemID, "available", hasKey)

	var skinEntries, otherEntries []Entry
	for _, entry := range req.Entries {
		if entry.Kind.IsSkin() {
			skinEntries = append(skinEntries, entry)
			continue
		}
		if !hasKey {
			logging.Warn("assembler", "no key found, attempting to process anyway",
				"item", req.ItemID, "kind", string(entry.Kind))
		}
		otherEntries = append(otherEntries, entry)
	}

	var outcome Outcome
	seen := make(map[string]struct{})

	// Non-skin URLs first. Packs accumulate into addon and DLC batches
	// so each batch packager runs exactly once.
	var addonPacks, dlcPacks []ExtractedPack
	for _, entry := range otherEntries {
		packs, ok := a.fetchAndUnpack(ctx, entry, downloadDir, &outcome)
		if !ok {
			continue
		}
		for _, pack := range packs {
			info, err := Classify(pack.Dir)
			if err != nil {
				outcome.fail(pack.SourceName, err)
				continue
			}
			if info.IsAddon {
				addonPacks = append(addonPacks, pack)
			} else {
				dlcPacks = append(dlcPacks, pack)
			}
		}
	}

	keyPath, personalPath := a.Ring.SharedPath(), a.Ring.PersonalPath()
	if len(addonPacks) > 0 {
		if err := a.Batch.PackageBatch(ctx, addonPacks, runOut, keyPath, personalPath, true); err != nil {
			outcome.fail("addon_batch", err)
			logging.Error("assembler", "addon packaging failed", "item", req.ItemID, "error", err)
		}
		collectNew(runOut, seen, &outcome, ".mcaddon", ".mcpack")
	}
	if len(dlcPacks) > 0 {
		if err := a.Batch.PackageBatch(ctx, dlcPacks, runOut, keyPath, personalPath, false); err != nil {
			outcome.fail("dlc_batch", err)
			logging.Error("assembler", "dlc packaging failed", "item", req.ItemID, "error", err)
		}
		collectNew(runOut, seen, &outcome, ".mcpack", ".mctemplate")
	}

	// Skin URLs afterwards, packaged pack by pack.
	for _, entry := range skinEntries {
		packs, ok := a.fetchAndUnpack(ctx, entry, downloadDir, &outcome)
		if !ok {
			continue
		}
		for _, pack := range packs {
			info, _ := Classify(pack.Dir)
			if err := a.Skin.PackageSkin(ctx, pack, runOut); err != nil {
				id := info.UniqueID
				if id == "" {
					id = "unknown"
				}
				outcome.fail(id, err)
				logging.Error("assembler", "skin packaging failed", "pack", pack.SourceName, "error", err)
				continue
			}
			collectNew(runOut, seen, &outcome, ".mcpack", ".zip")
		}
	}

	if len(outcome.Produced) == 0 {
		if !hasKey && len(skinEntries) == 0 {
			return nil, fmt.Errorf("%w for %q: add the required keys to %s or %s",
				ErrMissingKeys, req.Title, filepath.Base(keyPath), filepath.Base(personalPath))
		}
		if len(req.Entries) == 0 {
			return nil, fmt.Errorf("%w for %q", ErrNoContent, req.Title)
		}
		return nil, fmt.Errorf("%w: processing failed for all %d content URLs of %q",
			ErrNothingProduced, len(req.Entries), req.Title)
	}

	if len(outcome.Produced) == 1 {
		name := outcome.Produced[0]
		delivered = true
		return &Result{Filename: name, Path: filepath.Join(runOut, name), Dir: runOut, Outcome: outcome}, nil
	}

	combined := SanitizeTitle(req.Title) + "_content.zip"
	combinedPath := filepath.Join(runOut, combined)
	if err := bundleFiles(runOut, outcome.Produced, combinedPath); err != nil {
		return nil, fmt.Errorf("bundle outputs: %w", err)
	}
	logging.Info("assembler", "combined archive created", "file", combined, "parts", len(outcome.Produced))
	delivered = true
	return &Result{Filename: combined, Path: combinedPath, Dir: runOut, Outcome: outcome}, nil
}

// fetchAndUnpack records the failure and returns false when the entry
// yields no packs; the run always continues with the rest.
func (a *Assembler) fetchAndUnpack(ctx context.Context, entry Entry, downloadDir string, outcome *Outcome) ([]ExtractedPack, bool) {
	archive, err := a.Fetcher.Fetch(ctx, entry.URL, downloadDir)
	if err != nil {
		outcome.fail(entry.URL, err)
		return nil, false
	}
	packs, err := a.unpack(archive)
	if err != nil {
		outcome.fail(entry.URL, err)
		return nil, false
	}
	if len(packs) == 0 {
		outcome.fail(entry.URL, fmt.Errorf("no packs in archive"))
		return nil, false
	}
	a.Metrics.IncPacksExtracted(string(entry.Kind))
	return packs, true
}

// SanitizeTitle makes an item title safe for use in a filename.
func SanitizeTitle(title string) string {
	s := strings.ReplaceAll(title, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return unsafeFilenameRe.ReplaceAllString(s, "_")
}

// collectNew appends files in outDir that were not already collected and
// match one of the extensions, marking them as it goes.
func collectNew(outDir string, seen map[string]struct{}, outcome *Outcome, exts ...string) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if _, ok := seen[name]; ok {
			continue
		}
		for _, ext := range exts {
			if strings.HasSuffix(name, ext) {
				seen[name] = struct{}{}
				outcome.Produced = append(outcome.Produced, name)
				break
			}
		}
	}
}

func bundleFiles(dir string, names []string, target string) error {
	tmp := target + ".partial"
	if err := zipNamedFiles(dir, names, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}
