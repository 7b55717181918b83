package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/signalnine/triage/internal/trajectory"
	"go.uber.org/zap"
)

// CombinedSummaryFile and ExamplesDir live next to the per-configuration
// documents in the output directory.
const (
	CombinedSummaryFile = "combined_summary.json"
	ExamplesDir         = "examples"
	ExamplesFile        = "representative_examples.json"
)

var (
	ErrSamplingMismatch = errors.New("stored results were drawn with different sampling parameters; rerun with --force to replace them")
	ErrAlreadyClassified = errors.New("task already classified")
)

// DocumentPath is where the document for key is stored under dir.
func DocumentPath(dir string, key trajectory.Key) string {
	return filepath.Join(dir, key.Name()+".json")
}

// Store is the resumable, exclusively locked result file of one
// configuration. Every Append rewrites the document atomically.
type Store struct {
	path    string
	release func() error
	doc     Document
	done    map[int]bool
	written []byte
	logger  *zap.Logger
}

type Option func(*storeOptions)

type storeOptions struct {
	lockWait time.Duration
	logger   *zap.Logger
}

func WithLockWait(d time.Duration) Option { return func(o *storeOptions) { o.lockWait = d } }

func WithLogger(l *zap.Logger) Option { return func(o *storeOptions) { o.logger = l } }

// Open locks the store for key under dir and loads any prior results.
func Open(dir string, key trajectory.Key, opts ...Option) (*Store, error) {
	o := storeOptions{lockWait: 2 * time.Second, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	path := DocumentPath(dir, key)
	release, err := acquireDirLock(path+".lock", o.lockWait)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", key.Name(), err)
	}

	s := &Store{
		path:    path,
		release: release,
		doc:     Document{Config: key.Name(), Key: key},
		done:    map[int]bool{},
		logger:  o.logger.With(zap.String("config", key.Name())),
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			release()
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if doc.Config != key.Name() {
			release()
			return nil, fmt.Errorf("%s holds results for %q, not %q", path, doc.Config, key.Name())
		}
		s.doc = doc
		s.written = data
		for _, c := range doc.Classifications {
			s.done[c.TaskID] = true
		}
		s.logger.Debug("loaded prior results", zap.Int("classified", len(s.done)))
	case errors.Is(err, os.ErrNotExist):
	default:
		release()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Prepare records the run's metadata. Without force, prior results must
// have been drawn with the same sampling; with force they are discarded.
func (s *Store) Prepare(meta Meta, force bool) error {
	if force {
		s.doc.Classifications = nil
		s.done = map[int]bool{}
	} else if len(s.doc.Classifications) > 0 && !s.doc.Sampling.Equal(meta.Sampling) {
		return fmt.Errorf("%s: %w", s.doc.Config, ErrSamplingMismatch)
	}
	s.doc.File = meta.File
	s.doc.Judge = meta.Judge
	s.doc.Sampling = meta.Sampling
	return s.flush()
}

func (s *Store) AlreadyClassified(taskID int) bool { return s.done[taskID] }

// Append persists one result. It refuses to overwrite an existing one.
func (s *Store) Append(c Classification) error {
	if s.done[c.TaskID] {
		return fmt.Errorf("%s task %d: %w", s.doc.Config, c.TaskID, ErrAlreadyClassified)
	}
	cs := append(s.doc.Classifications, c)
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].TaskID < cs[j].TaskID })
	s.doc.Classifications = cs
	s.done[c.TaskID] = true
	return s.flush()
}

// Reset discards every stored result.
func (s *Store) Reset() error {
	s.doc.Classifications = nil
	s.doc.Summary = nil
	s.doc.Flagged = Flagged{}
	s.done = map[int]bool{}
	return s.flush()
}

func (s *Store) Len() int { return len(s.doc.Classifications) }

// Results returns the stored classifications ordered by task id.
func (s *Store) Results() []Classification {
	out := make([]Classification, len(s.doc.Classifications))
	copy(out, s.doc.Classifications)
	return out
}

// Finalize writes the derived views alongside the results.
func (s *Store) Finalize(stats Stats, summary Summary, flagged Flagged) error {
	s.doc.Stats = stats
	s.doc.Summary = summary
	s.doc.Flagged = flagged
	return s.flush()
}

func (s *Store) Document() Document {
	d := s.doc
	d.Classifications = s.Results()
	return d
}

func (s *Store) Close() error {
	if s.release == nil {
		return nil
	}
	err := s.release()
	s.release = nil
	return err
}

// flush rewrites the document when its encoding changed.
func (s *Store) flush() error {
	if s.doc.Classifications == nil {
		s.doc.Classifications = []Classification{}
	}
	if s.doc.Summary == nil {
		s.doc.Summary = Summary{}
	}
	data, err := encodeJSON(s.doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", s.path, err)
	}
	if bytes.Equal(data, s.written) {
		return nil
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	s.written = data
	return nil
}

// ReadDocument loads a per-configuration document.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing results %s: %w", path, err)
	}
	return &doc, nil
}

// ReadDocuments loads every per-configuration document in dir, ordered by
// configuration name.
func ReadDocuments(dir string) ([]*Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading results dir: %w", err)
	}
	var docs []*Document
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || name == CombinedSummaryFile {
			continue
		}
		doc, err := ReadDocument(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if doc.Config == "" {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Config < docs[j].Config })
	return docs, nil
}

// WriteJSON atomically writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
