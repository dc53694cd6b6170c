// Package archive stores raw report exports next to the aggregated results
// so they can be inspected or re-processed later. Archiving is a side
// effect: callers log failures and move on.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Export is one successful raw download.
type Export struct {
	AppID     string
	Endpoint  string
	Period    string
	From      string
	To        string
	Body      []byte
	FetchedAt time.Time
}

// Key is the object key relative to the archive root:
// {period}/{app}/{endpoint}/{from}_{to}.csv.
func (e Export) Key() string {
	return path.Join(
		safeSegment(e.Period),
		safeSegment(e.AppID),
		safeSegment(e.Endpoint),
		fmt.Sprintf("%s_%s.csv", safeSegment(e.From), safeSegment(e.To)),
	)
}

// safeSegment keeps caller-supplied values from escaping their directory.
func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Archiver persists exports.
type Archiver interface {
	Archive(ctx context.Context, e Export) error
}

// Noop discards exports.
type Noop struct{}

func (Noop) Archive(context.Context, Export) error { return nil }
