package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/david/grant-search/internal/models"
)

// IDAllocator hands out grant ids of the form g<N>. A grant whose URL is
// already stored keeps its id, so re-running a source updates in place.
type IDAllocator struct {
	next  int
	byURL map[string]string
}

// NewIDAllocator numbers new grants from start, or from one past the
// highest g<N> already in existing if that is larger.
func NewIDAllocator(existing models.GrantCollection, start int) *IDAllocator {
	a := &IDAllocator{next: start, byURL: make(map[string]string, len(existing))}
	for id, g := range existing {
		if g.URL != "" {
			a.byURL[g.URL] = id
		}
		if n, ok := parseGrantNumber(id); ok && n >= a.next {
			a.next = n + 1
		}
	}
	return a
}

// ID returns the id for the grant at url.
func (a *IDAllocator) ID(url string) string {
	if id, ok := a.byURL[url]; ok && url != "" {
		return id
	}
	id := fmt.Sprintf("g%d", a.next)
	a.next++
	if url != "" {
		a.byURL[url] = id
	}
	return id
}

func parseGrantNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "g")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
