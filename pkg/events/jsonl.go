package events

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONLines returns a Handler that writes each event as one JSON line to w
func JSONLines(w io.Writer) Handler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		// write errors surface as a broken events file, never as a failed run
		_ = enc.Encode(ev)
	}
}
