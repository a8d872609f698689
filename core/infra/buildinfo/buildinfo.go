package buildinfo

import (
	"fmt"
	"log"
	"runtime"
)

// Stamped via -ldflags at release time; "dev" builds keep the zero
// values.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info renders the stamp as one line for startup logs and the health
// endpoint.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", Version, Commit, Date, runtime.Version())
}

// Log announces the stamp under the binary's name.
func Log(service string) {
	log.Printf("%s %s", service, Info())
}
