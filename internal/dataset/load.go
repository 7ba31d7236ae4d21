package dataset

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dokanalyse/internal/model"
)

const (
	docTypeDataset = "dataset"
	docTypeQuality = "quality"
)

// Issue is a configuration document skipped during load.
type Issue struct {
	File string
	Doc  int
	Err  error
}

func (i Issue) String() string {
	if i.File == "" {
		return i.Err.Error()
	}
	return filepath.Base(i.File) + " #" + strconv.Itoa(i.Doc) + ": " + i.Err.Error()
}

type loaded struct {
	datasets []*model.DatasetConfig
	quality  []model.QualityConfig
	issues   []Issue
}

// loadDir parses every YAML file in dir. Broken documents become issues.
func loadDir(dir string) (*loaded, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: config dir %s", dir)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("dataset: %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read config dir %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, eris.Errorf("dataset: no yaml files in %s", dir)
	}
	sort.Strings(files)

	out := &loaded{}
	for _, f := range files {
		if err := out.readFile(f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *loaded) readFile(path string) error {
	fh, err := os.Open(path) //nolint:gosec
	if err != nil {
		return eris.Wrapf(err, "dataset: open %s", path)
	}
	defer fh.Close() //nolint:errcheck

	dec := yaml.NewDecoder(fh)
	for doc := 1; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// The decoder cannot resync after a syntax error.
			l.skip(path, doc, eris.Wrap(err, "dataset: parse yaml"))
			return nil
		}
		if node.Kind == 0 || (node.Kind == yaml.DocumentNode && len(node.Content) == 0) {
			continue
		}
		l.readDoc(path, doc, &node)
	}
}

func (l *loaded) readDoc(path string, doc int, node *yaml.Node) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := node.Decode(&head); err != nil {
		l.skip(path, doc, eris.Wrap(err, "dataset: decode document"))
		return
	}

	switch strings.ToLower(head.Type) {
	case docTypeDataset:
		var cfg model.DatasetConfig
		if err := node.Decode(&cfg); err != nil {
			l.skip(path, doc, eris.Wrap(err, "dataset: decode dataset"))
			return
		}
		if err := cfg.Validate(); err != nil {
			l.skip(path, doc, err)
			return
		}
		l.datasets = append(l.datasets, &cfg)
	case docTypeQuality:
		var cfg model.QualityConfig
		if err := node.Decode(&cfg); err != nil {
			l.skip(path, doc, eris.Wrap(err, "dataset: decode quality"))
			return
		}
		if err := cfg.Validate(); err != nil {
			l.skip(path, doc, err)
			return
		}
		l.quality = append(l.quality, cfg)
	default:
		l.skip(path, doc, eris.Errorf("dataset: unknown document type %q", head.Type))
	}
}

func (l *loaded) skip(path string, doc int, err error) {
	zap.L().Warn("dataset: skipping config document",
		zap.String("file", path),
		zap.Int("doc", doc),
		zap.Error(err),
	)
	l.issues = append(l.issues, Issue{File: path, Doc: doc, Err: err})
}
