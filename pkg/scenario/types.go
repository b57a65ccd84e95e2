package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	params "github.com/policysim/go-params"
)

var ErrETagMismatch = errors.New("scenario: etag mismatch")

// Ref identifies one persisted snapshot for one document family.
type Ref struct {
	Domain string
	Name   string
}

// Identifier returns the canonical storage key for the ref.
func (r Ref) Identifier() (string, error) {
	domain := strings.TrimSpace(r.Domain)
	name := strings.TrimSpace(r.Name)
	if domain == "" {
		return "", fmt.Errorf("scenario: domain is required")
	}
	if name == "" {
		return "", fmt.Errorf("scenario: name is required")
	}
	if strings.Contains(domain, "/") || strings.Contains(name, "/") {
		return "", fmt.Errorf("scenario: ref parts must not contain %q", "/")
	}
	return fmt.Sprintf("%s/%s", domain, name), nil
}

// Meta is storage-owned metadata used for trace/audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Snapshot is one stored what-if layer: a labeled revision plus the priority
// that orders it among sibling layers. Higher priorities win per cell.
type Snapshot struct {
	Label    string
	Priority int
	Revision params.Revision
}

// Store loads/saves one snapshot for a single ref.
type Store interface {
	Load(ctx context.Context, ref Ref) (snapshot Snapshot, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot Snapshot, meta Meta) (Meta, error)
}

// Mutator edits a snapshot in place during Mutate.
type Mutator func(*Snapshot) error

// Runner replays stored scenario layers against fresh engines built from one
// defaults document.
type Runner struct {
	Store       Store
	Document    []byte
	StartPeriod int
	NumPeriods  int
	Options     []params.Option
}

// Build loads the referenced snapshots, merges their revisions in ascending
// priority order (later layers win per cell), and returns an initialized
// engine with the merged revision applied. Refs that resolve to no stored
// snapshot are skipped; if none resolve the build fails.
func (r Runner) Build(ctx context.Context, refs ...Ref) (*params.Parameters, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("scenario: store is required")
	}
	if len(r.Document) == 0 {
		return nil, fmt.Errorf("scenario: document is required")
	}
	if r.NumPeriods < 1 {
		return nil, fmt.Errorf("scenario: runner needs at least one period")
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("scenario: at least one ref is required")
	}

	snapshots := make([]Snapshot, 0, len(refs))
	for _, ref := range refs {
		snapshot, _, ok, err := r.Store.Load(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("scenario: load %q for domain %q: %w", ref.Name, ref.Domain, err)
		}
		if !ok {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("scenario: no snapshots found")
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Priority < snapshots[j].Priority
	})

	revisions := make([]params.Revision, 0, len(snapshots))
	for _, snapshot := range snapshots {
		revisions = append(revisions, snapshot.Revision)
	}
	merged := params.MergeRevisions(revisions...)

	engine, err := params.New(r.Document, r.Options...)
	if err != nil {
		return nil, err
	}
	if err := engine.Initialize(r.StartPeriod, r.NumPeriods); err != nil {
		return nil, err
	}
	if len(merged) > 0 {
		if err := engine.Update(merged, false, true); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// Mutate loads one snapshot, applies fn, validates the result against a fresh
// engine, then saves. A caller-supplied ETag must match the stored one; a new
// SnapshotID and UpdatedAt are stamped when the caller leaves them empty.
func (r Runner) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator) (Snapshot, Meta, error) {
	if r.Store == nil {
		return Snapshot{}, Meta{}, fmt.Errorf("scenario: store is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return Snapshot{}, Meta{}, err
	}
	if fn == nil {
		return Snapshot{}, Meta{}, fmt.Errorf("scenario: mutator is required")
	}

	snapshot, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return Snapshot{}, Meta{}, fmt.Errorf("scenario: load %q for domain %q: %w", ref.Name, ref.Domain, err)
	}
	if !ok {
		snapshot = Snapshot{}
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return Snapshot{}, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return Snapshot{}, loadedMeta, err
	}

	if err := r.validate(snapshot.Revision); err != nil {
		return Snapshot{}, loadedMeta, err
	}

	saveMeta := mergeMeta(loadedMeta, meta)
	if saveMeta.SnapshotID == "" {
		saveMeta.SnapshotID = uuid.NewString()
	}
	if saveMeta.UpdatedAt.IsZero() {
		saveMeta.UpdatedAt = time.Now()
	}
	savedMeta, err := r.Store.Save(ctx, ref, snapshot, saveMeta)
	if err != nil {
		return Snapshot{}, loadedMeta, fmt.Errorf("scenario: save %q for domain %q: %w", ref.Name, ref.Domain, err)
	}
	return snapshot, savedMeta, nil
}

// validate dry-runs the revision against a throwaway engine so broken layers
// never reach the store.
func (r Runner) validate(rev params.Revision) error {
	if len(rev) == 0 || len(r.Document) == 0 {
		return nil
	}
	engine, err := params.New(r.Document, r.Options...)
	if err != nil {
		return err
	}
	if err := engine.Initialize(r.StartPeriod, r.NumPeriods); err != nil {
		return err
	}
	return engine.Update(rev, false, true)
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
