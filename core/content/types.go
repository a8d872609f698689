package content

// Entry is one downloadable asset declared by a catalog item.
type Entry struct {
	Kind Kind
	URL  string
}

// Request describes one assemble run.
type Request struct {
	ItemID  string
	Title   string
	Entries []Entry
}

// ExtractedPack is one pack folder produced by unpacking a downloaded
// archive. It lives inside the run's working tree and is removed with it.
type ExtractedPack struct {
	SourceName string
	Dir        string
}

// ManifestInfo is the classification derived from a pack's manifest.
// A pack without a manifest gets the zero value.
type ManifestInfo struct {
	UniqueID string
	IsAddon  bool
}

// Failure records one unit of work that did not produce output.
type Failure struct {
	Identifier string
	Message    string
}

// Outcome accumulates what a run produced and what failed along the way.
type Outcome struct {
	Produced []string
	Failures []Failure
}

func (o *Outcome) fail(identifier string, err error) {
	o.Failures = append(o.Failures, Failure{Identifier: identifier, Message: err.Error()})
}
