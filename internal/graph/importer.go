package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knakk/rdf"
	"go.uber.org/zap"
)

const importBatchSize = 1000

// TripleWriter is the write side of a triple store.
type TripleWriter interface {
	Insert(ctx context.Context, triples []Triple) (int, error)
}

// ImportResult counts what an import read and stored.
type ImportResult struct {
	Files int `json:"files"`
	Read  int `json:"read"`
	Added int `json:"added"`
}

// Importer loads RDF documents into a triple store.
type Importer struct {
	writer TripleWriter
	logger *zap.Logger
}

// NewImporter creates an Importer writing to w.
func NewImporter(w TripleWriter, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{writer: w, logger: logger}
}

// FormatFor returns the RDF serialization implied by a file extension.
func FormatFor(path string) (rdf.Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttl":
		return rdf.Turtle, true
	case ".nt":
		return rdf.NTriples, true
	case ".rdf", ".owl", ".xml":
		return rdf.RDFXML, true
	default:
		return 0, false
	}
}

// ImportPath imports a single file, or every supported file below a directory.
func (im *Importer) ImportPath(ctx context.Context, path string) (ImportResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return im.importFile(ctx, path)
	}

	var total ImportResult
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := FormatFor(p); !ok {
			return nil
		}
		res, err := im.importFile(ctx, p)
		if err != nil {
			return err
		}
		total.Files += res.Files
		total.Read += res.Read
		total.Added += res.Added
		return nil
	})
	return total, err
}

func (im *Importer) importFile(ctx context.Context, path string) (ImportResult, error) {
	format, ok := FormatFor(path)
	if !ok {
		return ImportResult{}, fmt.Errorf("unsupported RDF file extension: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	res, err := im.Import(ctx, f, format)
	if err != nil {
		return res, fmt.Errorf("failed to import %s: %w", path, err)
	}
	res.Files = 1

	im.logger.Info("imported graph file",
		zap.String("path", path),
		zap.Int("read", res.Read),
		zap.Int("added", res.Added),
	)
	return res, nil
}

// Import decodes r in the given format and stores its triples in batches.
func (im *Importer) Import(ctx context.Context, r io.Reader, format rdf.Format) (ImportResult, error) {
	dec := rdf.NewTripleDecoder(r, format)

	var res ImportResult
	batch := make([]Triple, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.writer.Insert(ctx, batch)
		if err != nil {
			return err
		}
		res.Added += n
		batch = batch[:0]
		return nil
	}

	for {
		t, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("decode triple %d: %w", res.Read+1, err)
		}
		res.Read++
		batch = append(batch, convertTriple(t))

		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}

	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func convertTriple(t rdf.Triple) Triple {
	out := Triple{
		Subject:   t.Subj.String(),
		Predicate: t.Pred.String(),
	}
	switch o := t.Obj.(type) {
	case rdf.Literal:
		out.Object = Literal(o.String(), o.Lang())
	case rdf.IRI:
		out.Object = IRI(o.String())
	default:
		out.Object = Term{Value: t.Obj.String(), Kind: KindBlank}
	}
	return out
}
