// Package catalog maintains the append-only registry mapping feature strings
// to dense integer IDs, with per-feature corpus occurrence counts.
//
// IDs are assigned monotonically on first sight of a (name, type) pair and
// are permanent: never reused, never renumbered. The on-disk form is a text
// file whose first line is the document count, followed by one
// "name<TAB>type<TAB>count" line per feature in ID order, so loading
// reproduces byte-identical IDs.
package catalog

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// Feature is one entry in the catalog.
type Feature struct {
	Name  string
	Type  string
	Count uint32
}

// Catalog is the feature registry. Reads may proceed concurrently; feature
// registration serialises behind a single writer.
type Catalog struct {
	mu       sync.RWMutex
	path     string
	numDocs  uint32
	features []Feature
	ids      map[string]map[string]uint32 // type -> name -> id
	logger   *slog.Logger
}

// New creates an empty catalog that persists to path. An existing file is
// loaded immediately.
func New(path string) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		ids:    make(map[string]map[string]uint32),
		logger: slog.Default().With("component", "feature-catalog"),
	}
	if _, err := os.Stat(path); err == nil {
		if err := c.load(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Len returns the number of distinct features.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.features)
}

// NumDocs returns the number of documents registered through the catalog.
func (c *Catalog) NumDocs() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.numDocs
}

// Lookup returns the ID of (name, ftype) if it has been registered.
func (c *Catalog) Lookup(name, ftype string) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[ftype][name]
	return id, ok
}

// NameOf returns the (name, type) pair of a feature ID.
func (c *Catalog) NameOf(id uint32) (name, ftype string, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) >= len(c.features) {
		return "", "", fmt.Errorf("id %d of %d: %w", id, len(c.features), apperrors.ErrUnknownFeature)
	}
	f := c.features[id]
	return f.Name, f.Type, nil
}

// RegisterDocument assigns IDs to every feature string of one document,
// creating new IDs as needed, and increments the document count and the
// occurrence count of each feature. The returned vector is sorted ascending,
// ready for the stream encoder.
func (c *Catalog) RegisterDocument(featuresByType map[string][]string) []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numDocs++
	var result []uint32
	for ftype, names := range featuresByType {
		byName, ok := c.ids[ftype]
		if !ok {
			byName = make(map[string]uint32)
			c.ids[ftype] = byName
		}
		for _, name := range names {
			id, ok := byName[name]
			if !ok {
				id = uint32(len(c.features))
				c.features = append(c.features, Feature{Name: name, Type: ftype, Count: 1})
				byName[name] = id
			} else {
				c.features[id].Count++
			}
			result = append(result, id)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Counts returns the per-feature occurrence counts indexed by ID.
func (c *Catalog) Counts() []uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make([]uint32, len(c.features))
	for i, f := range c.features {
		counts[i] = f.Count
	}
	return counts
}

// BackgroundFreqs returns each feature's corpus frequency count/numdocs, the
// default pseudocount vector for Bayesian scoring.
func (c *Catalog) BackgroundFreqs() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	freqs := make([]float64, len(c.features))
	if c.numDocs == 0 {
		return freqs
	}
	n := float64(c.numDocs)
	for i, f := range c.features {
		freqs[i] = float64(f.Count) / n
	}
	return freqs
}

// TypeMask returns a boolean vector marking features of the given types,
// or nil when no types are given.
func (c *Catalog) TypeMask(ftypes []string) []bool {
	if len(ftypes) == 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	mask := make([]bool, len(c.features))
	for _, ftype := range ftypes {
		for _, id := range c.ids[ftype] {
			mask[id] = true
		}
	}
	return mask
}

// Save writes the catalog atomically: a temp file in the same directory is
// renamed over the target on success.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tmpPath := c.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp catalog file: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d\n", c.numDocs)
	for _, feat := range c.features {
		fmt.Fprintf(w, "%s\t%s\t%d\n", feat.Name, feat.Type, feat.Count)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing catalog: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing catalog: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("renaming catalog file: %w", err)
	}
	c.logger.Info("catalog saved", "features", len(c.features), "documents", c.numDocs)
	return nil
}

// load reads the catalog file, rebuilding the ID index in line order so that
// every feature keeps the ID it was first assigned.
func (c *Catalog) load() error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("opening catalog file: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading catalog header: %w", err)
		}
		return apperrors.Corruptf("catalog file %s is empty", c.path)
	}
	numDocs, err := strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 32)
	if err != nil {
		return apperrors.Corruptf("catalog header %q is not a document count", scanner.Text())
	}
	c.numDocs = uint32(numDocs)
	for lineno := 2; scanner.Scan(); lineno++ {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) != 3 {
			return apperrors.Corruptf("catalog line %d has %d fields, want 3", lineno, len(parts))
		}
		count, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return apperrors.Corruptf("catalog line %d count %q: %v", lineno, parts[2], err)
		}
		name, ftype := parts[0], parts[1]
		id := uint32(len(c.features))
		c.features = append(c.features, Feature{Name: name, Type: ftype, Count: uint32(count)})
		byName, ok := c.ids[ftype]
		if !ok {
			byName = make(map[string]uint32)
			c.ids[ftype] = byName
		}
		byName[name] = id
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading catalog file: %w", err)
	}
	c.logger.Info("catalog loaded", "features", len(c.features), "documents", c.numDocs)
	return nil
}
