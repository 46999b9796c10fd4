// Package imagestore implements the content-addressed OCI image cache:
// multi-registry reference resolution, concurrent per-layer streaming
// extraction, and idempotent commit to the on-disk layout (spec §4.3).
package imagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/uuid"
	imagespecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/panjf2000/ants/v2"

	"github.com/boxlite/boxlite/gc"
	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/internal/logging"
	"github.com/boxlite/boxlite/layout"
	"github.com/boxlite/boxlite/layerapply"
	"github.com/boxlite/boxlite/lock/flock"
	"github.com/boxlite/boxlite/progress"
	"github.com/boxlite/boxlite/storage"
	storejson "github.com/boxlite/boxlite/storage/json"
	"github.com/boxlite/boxlite/types"
)

// Store is the content-addressed OCI image cache.
type Store struct {
	layout     *layout.Layout
	registries []string
	pool       *ants.Pool
	idx        storage.Store[index]
}

// New creates a Store rooted at l. registries is the ordered list tried for
// unqualified references (spec §6 BoxliteOptions.image_registries). pool is
// shared across concurrent layer downloads/extractions.
func New(l *layout.Layout, registries []string, pool *ants.Pool) *Store {
	return &Store{
		layout:     l,
		registries: registries,
		pool:       pool,
		idx:        storejson.New[index](l.ImageIndexLock(), l.ImageIndexFile()),
	}
}

// Pull resolves ref (trying each configured registry in order for
// unqualified references), downloads the manifest/config/layers not
// already cached, and commits the result atomically (spec §4.3 "Pull").
func (s *Store) Pull(ctx context.Context, ref string) (types.ImageObject, error) {
	return s.PullWithProgress(ctx, ref, progress.Nop)
}

// PullWithProgress is Pull with Event notifications for a CLI or other
// interactive caller to render (spec §4.3 "Pull"; events are not part of
// the spec's own contract, only a convenience for the cmd package).
func (s *Store) PullWithProgress(ctx context.Context, ref string, tracker progress.Tracker) (types.ImageObject, error) {
	logger := logging.WithFunc("imagestore.Pull")
	if tracker == nil {
		tracker = progress.Nop
	}

	img, resolvedRef, err := s.resolveAndFetch(ctx, ref)
	if err != nil {
		return types.ImageObject{}, err
	}

	manifestDigest, err := img.Digest()
	if err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "read manifest digest", err)
	}
	configDigest, err := img.ConfigName()
	if err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "read config digest", err)
	}

	// Idempotency: already pulled with the same manifest digest.
	var cached *types.ImageObject
	if err := s.idx.With(ctx, func(i *index) error {
		if e, ok := i.Images[resolvedRef]; ok && e.ManifestDigest == manifestDigest.Hex {
			cached = entryToImageObject(e)
		}
		return nil
	}); err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "read image index", err)
	}
	if cached != nil {
		logger.Infof(ctx, "already up to date: %s", resolvedRef)
		return *cached, nil
	}

	layers, err := img.Layers()
	if err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "read layers", err)
	}
	if len(layers) == 0 {
		return types.ImageObject{}, boxerr.Newf(boxerr.Storage, "image %s has no layers", resolvedRef)
	}

	if err := s.layout.PrepareImageDirs(manifestDigest.Hex); err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "prepare image dirs", err)
	}

	tracker.OnEvent(Event{Phase: PhasePull, Reference: resolvedRef, Total: len(layers)})
	layerDigests, err := s.extractLayers(ctx, layers, manifestDigest.Hex, tracker)
	if err != nil {
		return types.ImageObject{}, err
	}

	manifestRaw, err := img.RawManifest()
	if err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "read raw manifest", err)
	}
	configRaw, err := img.RawConfigFile()
	if err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "read raw config", err)
	}
	if err := os.WriteFile(s.layout.ImageManifestFile(manifestDigest.Hex), manifestRaw, 0o644); err != nil { //nolint:gosec
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "write manifest.json", err)
	}
	if err := os.WriteFile(s.layout.ImageConfigFile(manifestDigest.Hex), configRaw, 0o644); err != nil { //nolint:gosec
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "write config.json", err)
	}

	e := &entry{
		Reference:      resolvedRef,
		ManifestDigest: manifestDigest.Hex,
		ConfigDigest:   configDigest.Hex,
		LayerDigests:   layerDigests,
		PulledAt:       time.Now(),
	}
	if err := s.idx.Update(ctx, func(i *index) error {
		// Re-check under the write lock: another process may have finished
		// an identical pull while we were extracting layers.
		if existing, ok := i.Images[resolvedRef]; ok && existing.ManifestDigest == manifestDigest.Hex {
			return nil
		}
		i.Images[resolvedRef] = e
		return nil
	}); err != nil {
		return types.ImageObject{}, boxerr.Wrap(boxerr.Storage, "commit image index", err)
	}

	tracker.OnEvent(Event{Phase: PhaseDone, Reference: resolvedRef, Total: len(layers)})
	logger.Infof(ctx, "pulled %s (digest sha256:%s, %d layers)", resolvedRef, manifestDigest.Hex, len(layers))
	return *entryToImageObject(e), nil
}

// resolveAndFetch tries ref qualified against each registry in order,
// returning the first successfully fetched remote image (spec §4.3
// "Reference resolution tries image_registries in order... first success
// wins").
func (s *Store) resolveAndFetch(ctx context.Context, ref string) (v1.Image, string, error) {
	candidates := candidateRefs(ref, s.registries)
	platform := v1.Platform{Architecture: runtime.GOARCH, OS: "linux"}

	var lastErr error
	for _, candidate := range candidates {
		parsed, err := name.ParseReference(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		img, err := remote.Image(parsed,
			remote.WithAuthFromKeychain(authn.DefaultKeychain),
			remote.WithContext(ctx),
			remote.WithPlatform(platform),
		)
		if err != nil {
			lastErr = err
			continue
		}
		return img, parsed.String(), nil
	}
	return nil, "", boxerr.Wrapf(boxerr.Storage, lastErr, "resolve %s against %d candidate(s)", ref, len(candidates))
}

// candidateRefs expands an unqualified ref into one candidate per registry.
// A ref is considered already qualified if its first path component looks
// like a registry host (contains '.' or ':') or it is a fully local path.
func candidateRefs(ref string, registries []string) []string {
	if looksQualified(ref) || len(registries) == 0 {
		return []string{ref}
	}
	out := make([]string, len(registries))
	for i, reg := range registries {
		out[i] = strings.TrimSuffix(reg, "/") + "/" + ref
	}
	return out
}

func looksQualified(ref string) bool {
	first, _, found := strings.Cut(ref, "/")
	if !found {
		return false
	}
	return strings.ContainsAny(first, ".:") || first == "localhost"
}

// extractLayers downloads and extracts every layer concurrently via the
// shared worker pool, each into a temp sibling directory then renamed into
// place atomically (spec §4.3's "write-temp-then-rename" cache discipline,
// applied per layer so a crash mid-pull leaves no partially-extracted
// directory visible under its final name).
func (s *Store) extractLayers(ctx context.Context, layers []v1.Layer, manifestHex string, tracker progress.Tracker) ([]string, error) {
	digests := make([]string, len(layers))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i, layer := range layers {
		wg.Add(1)
		idx, l := i, layer
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			digest, err := s.extractOneLayer(ctx, l, manifestHex)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("layer %d: %w", idx, err))
				mu.Unlock()
				return
			}
			digests[idx] = digest
			tracker.OnEvent(Event{Phase: PhaseLayer, Index: idx, Total: len(layers), Digest: digest})
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("submit layer %d: %w", idx, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, boxerr.Newf(boxerr.Storage, "layer extraction errors: %v", errs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return digests, nil
}

// extractOneLayer extracts layer in isolation into its own cache
// directory keyed by layer digest. Because nothing exists in tempDir
// beforehand, whiteout entries are materialized literally rather than
// interpreted as deletions (layerapply.Options.MaterializeWhiteouts) —
// interpreting them against the real accumulated rootfs happens later,
// in rootfsassembler, by walking the ordered cached layer directories
// with layerapply.ApplyDir.
func (s *Store) extractOneLayer(ctx context.Context, layer v1.Layer, manifestHex string) (string, error) {
	digest, err := layer.Digest()
	if err != nil {
		return "", boxerr.Wrap(boxerr.Storage, "read layer digest", err)
	}

	finalDir := s.layout.ImageLayerDir(manifestHex, digest.Hex)
	if _, statErr := os.Stat(finalDir); statErr == nil {
		return digest.Hex, nil // already extracted by an earlier pull of this manifest
	}

	rc, err := layer.Uncompressed()
	if err != nil {
		return "", boxerr.Wrap(boxerr.Storage, "open uncompressed layer", err)
	}
	defer rc.Close() //nolint:errcheck

	tempDir := filepath.Join(s.layout.TempDir(), "layer-"+uuid.NewString())
	privileged := os.Geteuid() == 0
	applyOpts := layerapply.Options{Privileged: privileged, MaterializeWhiteouts: true}
	if _, err := layerapply.Apply(ctx, rc, tempDir, applyOpts); err != nil {
		_ = os.RemoveAll(tempDir)
		return "", err
	}
	if err := os.Rename(tempDir, finalDir); err != nil {
		_ = os.RemoveAll(tempDir)
		return "", boxerr.Wrapf(boxerr.Storage, err, "install layer %s", digest.Hex)
	}
	return digest.Hex, nil
}

// Get returns the cached ImageObject for ref (exact reference match).
func (s *Store) Get(ctx context.Context, ref string) (types.ImageObject, error) {
	var obj *types.ImageObject
	err := s.idx.With(ctx, func(i *index) error {
		e, ok := i.Images[ref]
		if !ok {
			return boxerr.Newf(boxerr.NotFound, "image %s", ref)
		}
		obj = entryToImageObject(e)
		return nil
	})
	if err != nil {
		return types.ImageObject{}, err
	}
	return *obj, nil
}

// ImageConfig reads back img's cached OCI config.json and decodes it into
// the typed image-spec struct, giving the init pipeline the image's declared
// Entrypoint/Cmd/Env/WorkingDir defaults for Container.Init (spec §4.10
// "creates an OCI container from the prepared rootfs and declared
// entrypoint/env").
func (s *Store) ImageConfig(img types.ImageObject) (imagespecv1.Image, error) {
	raw, err := os.ReadFile(s.layout.ImageConfigFile(img.ManifestDigest.Hex()))
	if err != nil {
		return imagespecv1.Image{}, boxerr.Wrap(boxerr.Storage, "read cached image config", err)
	}
	var cfg imagespecv1.Image
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return imagespecv1.Image{}, boxerr.Wrap(boxerr.Storage, "decode image config", err)
	}
	return cfg, nil
}

// List returns every cached image.
func (s *Store) List(ctx context.Context) ([]types.ImageObject, error) {
	var out []types.ImageObject
	err := s.idx.With(ctx, func(i *index) error {
		out = make([]types.ImageObject, 0, len(i.Images))
		for _, e := range i.Images {
			out = append(out, *entryToImageObject(e))
		}
		return nil
	})
	return out, err
}

// RegisterGC wires the image cache into o. Each cycle, every top-level
// image directory under ImagesDir() whose digest is no longer referenced
// by the index is removed — mirroring the teacher's self-contained
// `gcUnreferenced` (spec §5 "Image cache directories are write-once").
func (s *Store) RegisterGC(o *gc.Orchestrator) {
	gc.Register(o, gc.Module[index]{
		Name:   "images",
		Locker: flock.New(s.layout.ImageIndexLock()),
		ReadDB: func(context.Context) (index, error) {
			// The orchestrator already holds the index lock; s.idx.With would
			// take a second flock on the same file, so read the file directly.
			var snap index
			raw, err := os.ReadFile(s.layout.ImageIndexFile())
			if err == nil {
				err = json.Unmarshal(raw, &snap)
			} else if os.IsNotExist(err) {
				err = nil
			}
			snap.Init()
			return snap, err
		},
		ResolveTargets: func(snap index, _ map[string]any) []string {
			referenced := snap.referencedDigests()
			entries, err := os.ReadDir(s.layout.ImagesDir())
			if err != nil {
				return nil
			}
			var stale []string
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				if _, ok := referenced[e.Name()]; !ok {
					stale = append(stale, e.Name())
				}
			}
			return stale
		},
		Collect: func(ctx context.Context, ids []string) error {
			return s.collectDirs(ids)
		},
	})
}

func (s *Store) collectDirs(digests []string) error {
	for _, d := range digests {
		_ = os.RemoveAll(filepath.Join(s.layout.ImagesDir(), d))
	}
	return nil
}

func entryToImageObject(e *entry) *types.ImageObject {
	layerDigests := make([]types.Digest, len(e.LayerDigests))
	for i, d := range e.LayerDigests {
		layerDigests[i] = types.NewDigest(d)
	}
	return &types.ImageObject{
		Reference:      e.Reference,
		ManifestDigest: types.NewDigest(e.ManifestDigest),
		ConfigDigest:   types.NewDigest(e.ConfigDigest),
		LayerDigests:   layerDigests,
		PulledAt:       e.PulledAt,
	}
}
