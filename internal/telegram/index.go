package telegram

import (
	"sync"

	"github.com/sahilm/fuzzy"
)

// peerIndex keeps the most recent contact list for peer lookups.
type peerIndex struct {
	mu       sync.RWMutex
	contacts []Contact
}

func (ix *peerIndex) replace(contacts []Contact) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.contacts = append([]Contact(nil), contacts...)
}

func (ix *peerIndex) len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.contacts)
}

// contactSource exposes contacts to fuzzy matching by name and peer.
type contactSource []Contact

func (s contactSource) String(i int) string { return s[i].Name + " " + s[i].Peer }
func (s contactSource) Len() int            { return len(s) }

// find returns contacts whose name or peer fuzzily matches query, best
// match first.
func (ix *peerIndex) find(query string) []Contact {
	if query == "" {
		return nil
	}
	ix.mu.RLock()
	src := contactSource(ix.contacts)
	ix.mu.RUnlock()

	matches := fuzzy.FindFrom(query, src)
	out := make([]Contact, 0, len(matches))
	for _, m := range matches {
		out = append(out, src[m.Index])
	}
	return out
}
