package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aiengineer/rageval/internal/judgments"
	"github.com/aiengineer/rageval/internal/pkg/errors"
)

// Dataset is an on-disk evaluation set: queries with their ground truth and
// the ranked output of the retrieval pipeline under test.
type Dataset struct {
	Name    string         `json:"name" yaml:"name"`
	K       int            `json:"k" yaml:"k"`
	Ks      []int          `json:"ks,omitempty" yaml:"ks,omitempty"`
	Queries []DatasetQuery `json:"queries" yaml:"queries"`
}

// DatasetQuery is one query of a Dataset.
type DatasetQuery struct {
	ID       string   `json:"id" yaml:"id"`
	Query    string   `json:"query,omitempty" yaml:"query,omitempty"`
	Relevant []string `json:"relevant" yaml:"relevant"`
	Ranked   []string `json:"ranked" yaml:"ranked"`
}

// LoadDataset reads a dataset from a .yaml, .yml or .json file. A dataset
// without k is scored at defaultK, or at DefaultK when defaultK < 1.
func LoadDataset(path string, defaultK int) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	var ds Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &ds)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &ds)
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unsupported dataset extension %q (want .yaml, .yml or .json)", filepath.Ext(path)))
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidRequest, "parsing dataset", err)
	}

	if ds.Name == "" {
		ds.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if ds.K == 0 && defaultK > 0 {
		ds.K = defaultK
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks IDs and the cutoff, and applies DefaultK when K is 0.
func (d *Dataset) Validate() error {
	if d.K < 0 {
		return errors.ValidationError(fmt.Sprintf("k must not be negative, got %d", d.K))
	}
	if d.K == 0 {
		d.K = DefaultK
	}
	seen := make(map[string]struct{}, len(d.Queries))
	for i, q := range d.Queries {
		if strings.TrimSpace(q.ID) == "" {
			return errors.ValidationError("query id is required").WithDetail("index", fmt.Sprintf("%d", i))
		}
		if _, dup := seen[q.ID]; dup {
			return errors.ValidationError(fmt.Sprintf("duplicate query id %q", q.ID))
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// Judgments flattens the dataset's ground truth for a judgments.Store.
func (d *Dataset) Judgments() []judgments.Judgment {
	var out []judgments.Judgment
	for _, q := range d.Queries {
		for _, doc := range q.Relevant {
			out = append(out, judgments.Judgment{QueryID: q.ID, DocID: doc})
		}
	}
	return out
}

// Run converts the dataset into a Run scored at Ks, or at K when Ks is empty.
// Ground truth travels inline, so the run does not depend on stored judgments.
func (d *Dataset) Run() Run {
	ks := d.Ks
	if len(ks) == 0 {
		ks = []int{d.K}
	}
	run := Run{Name: d.Name, Ks: ks, Queries: make([]QueryRun, len(d.Queries))}
	for i, q := range d.Queries {
		relevant := q.Relevant
		if relevant == nil {
			relevant = []string{}
		}
		run.Queries[i] = QueryRun{
			QueryID:  q.ID,
			Query:    q.Query,
			Ranked:   q.Ranked,
			Relevant: relevant,
		}
	}
	return run
}

// Batch returns the paired inputs for BatchRecallAtK.
func (d *Dataset) Batch() ([]GroundTruth, [][]string) {
	gts := make([]GroundTruth, len(d.Queries))
	ranked := make([][]string, len(d.Queries))
	for i, q := range d.Queries {
		gts[i] = NewGroundTruth(q.Relevant...)
		ranked[i] = q.Ranked
	}
	return gts, ranked
}
