package imagestore

import "time"

// entry is the persisted record for one pulled reference, keyed by the
// (possibly multi-registry-resolved) reference string.
type entry struct {
	Reference      string    `json:"reference"`
	ManifestDigest string    `json:"manifest_digest"`
	ConfigDigest   string    `json:"config_digest"`
	LayerDigests   []string  `json:"layer_digests"`
	PulledAt       time.Time `json:"pulled_at"`
}

// index is the top-level images.json structure.
type index struct {
	Images map[string]*entry `json:"images"`
}

// Init implements storage.Initer.
func (i *index) Init() {
	if i.Images == nil {
		i.Images = make(map[string]*entry)
	}
}

// referencedDigests returns the set of every manifest and layer digest hex referenced by
// any still-indexed image, used by GC to compute unreferenced cache entries.
func (i *index) referencedDigests() map[string]struct{} {
	refs := make(map[string]struct{})
	for _, e := range i.Images {
		refs[e.ManifestDigest] = struct{}{}
		for _, d := range e.LayerDigests {
			refs[d] = struct{}{}
		}
	}
	return refs
}
