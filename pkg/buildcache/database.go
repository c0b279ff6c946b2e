package buildcache

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nscaledev/spackcore/pkg/spec"
	"github.com/nscaledev/spackcore/pkg/specfile"
)

// Entry is one row of the in-memory spec database built from a mirror's
// manifests (spec.md §C.3).
type Entry struct {
	Name string
	Hash string
	Spec *spec.Spec
}

// Database is the in-memory index of every spec manifest on a mirror,
// queryable by name, hash, or an arbitrary spec.Matcher (spec.md §C.3).
type Database struct {
	byHash map[string]*Entry
	byName map[string][]*Entry
}

// NewDatabase returns an empty Database.
func NewDatabase() *Database {
	return &Database{byHash: map[string]*Entry{}, byName: map[string][]*Entry{}}
}

// Insert adds or replaces an entry.
func (d *Database) Insert(e *Entry) {
	if old, ok := d.byHash[e.Hash]; ok {
		d.removeFromByName(old)
	}
	d.byHash[e.Hash] = e
	d.byName[e.Name] = append(d.byName[e.Name], e)
}

func (d *Database) removeFromByName(e *Entry) {
	list := d.byName[e.Name]
	for i, cand := range list {
		if cand.Hash == e.Hash {
			d.byName[e.Name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// ByHash looks up an entry by exact dag hash.
func (d *Database) ByHash(hash string) (*Entry, bool) {
	e, ok := d.byHash[hash]
	return e, ok
}

// ByName returns every entry for a package name.
func (d *Database) ByName(name string) []*Entry {
	return append([]*Entry(nil), d.byName[name]...)
}

// Query returns every entry whose spec satisfies m, sorted by name then
// hash for deterministic output (spec.md §C.3).
func (d *Database) Query(m spec.Matcher) ([]*Entry, error) {
	var candidates []*Entry
	if m.Name != "" {
		candidates = d.byName[m.Name]
	} else {
		for _, e := range d.byHash {
			candidates = append(candidates, e)
		}
	}
	var out []*Entry
	for _, e := range candidates {
		ok, err := e.Spec.Satisfies(m)
		if err != nil {
			return nil, errors.Wrapf(err, "matching %s against query", e.Name)
		}
		if ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Hash < out[j].Hash
	})
	return out, nil
}

// indexDocument is the serialized form of a Database (index.json /
// index.manifest.json's referenced blob).
type indexDocument struct {
	Specs []indexedSpec `json:"specs"`
}

type indexedSpec struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// GenerateIndexOptions controls a generate_index run.
type GenerateIndexOptions struct {
	// SkipErrors tolerates unreadable/corrupt individual manifests,
	// skipping and logging rather than aborting the whole scan
	// (spec.md §C.5, the reindex/rebuild-database behavior).
	SkipErrors bool
}

// GenerateIndex implements spec.md §4.6's generate_index: enumerate spec
// manifests on a mirror, decode each into the in-memory database,
// serialize the database, and push it as a blob+manifest pair.
func GenerateIndex(ctx context.Context, m Mirror, opts GenerateIndexOptions) (*Database, error) {
	paths, err := m.ListManifests(ctx, "v3/manifests/spec/")
	if err != nil {
		return nil, errors.Wrap(err, "listing spec manifests")
	}

	db := NewDatabase()
	for _, p := range paths {
		data, _, err := m.GetManifest(ctx, p)
		if err != nil {
			if opts.SkipErrors {
				logrus.WithField("manifest", p).WithError(err).Warn("buildcache: skipping unreadable manifest during reindex")
				continue
			}
			return nil, errors.Wrapf(err, "reading manifest %q", p)
		}
		manifest, err := DecodeManifest(data)
		if err != nil {
			if opts.SkipErrors {
				logrus.WithField("manifest", p).WithError(err).Warn("buildcache: skipping corrupt manifest during reindex")
				continue
			}
			return nil, err
		}
		record, ok := manifest.RecordFor(MediaTypeSpec)
		if !ok {
			if opts.SkipErrors {
				continue
			}
			return nil, errors.Wrapf(ErrInvalidMetadataFile, "manifest %q has no spec record", p)
		}
		specBytes, err := fetchAndVerifyBlob(ctx, m, record)
		if err != nil {
			if opts.SkipErrors {
				logrus.WithField("manifest", p).WithError(err).Warn("buildcache: skipping unreadable spec blob during reindex")
				continue
			}
			return nil, err
		}
		decoded, err := specfile.Decode(specBytes)
		if err != nil {
			if opts.SkipErrors {
				logrus.WithField("manifest", p).WithError(err).Warn("buildcache: skipping undecodable specfile during reindex")
				continue
			}
			return nil, err
		}
		db.Insert(&Entry{Name: decoded.Name, Hash: decoded.Hash, Spec: decoded})
	}

	indexBytes, err := serializeIndex(db)
	if err != nil {
		return nil, err
	}
	if err := pushIndexBlob(ctx, m, indexBytes); err != nil {
		return nil, err
	}
	return db, nil
}

func serializeIndex(db *Database) ([]byte, error) {
	var doc indexDocument
	names := make([]string, 0, len(db.byName))
	for name := range db.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries := append([]*Entry(nil), db.byName[name]...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Hash < entries[j].Hash })
		for _, e := range entries {
			doc.Specs = append(doc.Specs, indexedSpec{Name: e.Name, Hash: e.Hash})
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding index")
	}
	return data, nil
}

func pushIndexBlob(ctx context.Context, m Mirror, indexBytes []byte) error {
	dgst := digest.FromBytes(indexBytes)
	if err := m.PutBlob(ctx, dgst, bytes.NewReader(indexBytes), int64(len(indexBytes))); err != nil {
		return errors.Wrap(err, "uploading index blob")
	}
	record := DataRecord{
		ContentLength: int64(len(indexBytes)), MediaType: MediaTypeBuildcacheIndex, Compression: CompressionNone,
		ChecksumAlgorithm: "sha256", Checksum: dgst.Encoded(),
	}
	manifestBytes, err := EncodeManifest(Manifest{Data: []DataRecord{record}})
	if err != nil {
		return err
	}
	return errors.Wrap(m.PutManifest(ctx, indexManifestPath(), manifestBytes), "uploading index manifest")
}
