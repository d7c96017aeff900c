package configsvc

import "github.com/clads-dev/clads-gateway/internal/store/models"

// Entry pairs a persisted config row with its decrypted API key. The
// decrypted key never leaves process memory — it is rebuilt from
// api_key_ciphertext on every Reload and is not itself persisted anywhere.
type Entry struct {
	Config models.UpstreamConfig
	APIKey string
}

// Snapshot is an immutable view of every config row, published atomically by
// the Service on every mutation or explicit reload. Readers on the hot path
// load one pointer and never block on a writer.
type Snapshot struct {
	entries      []Entry
	byPublicName map[string]Entry
}

func newSnapshot(entries []Entry) *Snapshot {
	byName := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Config.IsEnabled {
			byName[e.Config.PublicName] = e
		}
	}
	return &Snapshot{entries: entries, byPublicName: byName}
}

// Lookup finds an enabled config by its client-facing public_name.
func (s *Snapshot) Lookup(publicName string) (Entry, bool) {
	e, ok := s.byPublicName[publicName]
	return e, ok
}

// VisibleOn returns every enabled config visible on the given endpoint kind.
func (s *Snapshot) VisibleOn(endpoint EndpointKind) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if !e.Config.IsEnabled {
			continue
		}
		if endpoint == EndpointGeneral && !e.Config.AvailableOnGeneral {
			continue
		}
		if endpoint == EndpointSpecial && !e.Config.AvailableOnSpecial {
			continue
		}
		out = append(out, e)
	}
	return out
}

// EndpointKind distinguishes the two proxy listeners a config can be visible on.
type EndpointKind string

const (
	EndpointGeneral EndpointKind = "general"
	EndpointSpecial EndpointKind = "special"
)
