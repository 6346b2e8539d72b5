package runs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-cohorts/internal/analysis"
)

// Run is one archived analysis. Result holds the analysis.Result as JSON;
// the archive never interprets it.
type Run struct {
	ID          string          `json:"id"`
	SourceName  string          `json:"source_name"`
	Fingerprint string          `json:"fingerprint"`
	K           int             `json:"k"`
	Seed        int64           `json:"seed"`
	Students    int             `json:"students"`
	Clustered   bool            `json:"clustered"`
	CreatedAt   time.Time       `json:"created_at"`
	Result      json.RawMessage `json:"result,omitempty"`

	// Links are filled in by the API per response and never archived.
	Links map[string]string `json:"links,omitempty"`
}

type ListOpts struct {
	Fingerprint string // optional exact match
	Limit       int
	Offset      int
}

// NewRun wraps a finished result in a Run with a fresh ID.
func NewRun(sourceName string, res *analysis.Result) (Run, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return Run{}, fmt.Errorf("encode result: %w", err)
	}
	return Run{
		ID:          uuid.NewString(),
		SourceName:  sourceName,
		Fingerprint: res.Fingerprint,
		K:           res.Options.Cluster.K,
		Seed:        res.Options.Cluster.Seed,
		Students:    len(res.Graded),
		Clustered:   res.Clustered(),
		CreatedAt:   time.Now().UTC(),
		Result:      b,
	}, nil
}

// Decode unmarshals the stored result.
func (r Run) Decode() (*analysis.Result, error) {
	if len(r.Result) == 0 {
		return nil, fmt.Errorf("run %s: no result stored", r.ID)
	}
	var res analysis.Result
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.ID, err)
	}
	return &res, nil
}

func (o ListOpts) window() (limit, offset int) {
	limit, offset = o.Limit, o.Offset
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
