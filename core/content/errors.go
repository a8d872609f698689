package content

import "errors"

var (
	// ErrNotArchive marks a downloaded file that is not a valid zip.
	// Terminal for that URL; the bytes arrived, so no retry.
	ErrNotArchive = errors.New("downloaded file is not a valid zip archive")

	// ErrMissingKeys is raised when a run produced nothing, no key was
	// available, and the item had no skin content.
	ErrMissingKeys = errors.New("missing decryption keys")

	// ErrNothingProduced is raised when a run produced nothing for any
	// other reason.
	ErrNothingProduced = errors.New("no content files were produced")

	// ErrNoContent marks an item with no downloadable content URLs.
	ErrNoContent = errors.New("no downloadable content found")
)
