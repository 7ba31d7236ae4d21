package analysis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/metrics"
	"github.com/sells-group/dokanalyse/internal/model"
)

// ErrInvalidRequest marks a request that cannot be analyzed as submitted.
var ErrInvalidRequest = eris.New("analysis: invalid request")

// Request is one analysis request.
type Request struct {
	InputGeometry   json.RawMessage `json:"inputGeometry"`
	Buffer          int             `json:"requestedBuffer"`
	Context         string          `json:"context"`
	Theme           string          `json:"theme"`
	Datasets        []uuid.UUID     `json:"datasets"`
	IncludeGuidance bool            `json:"includeGuidance"`
	IncludeQuality  bool            `json:"includeQualityMeasurement"`
}

// Validate performs the minimal request checks.
func (r *Request) Validate() error {
	if len(r.InputGeometry) == 0 || string(r.InputGeometry) == "null" {
		return eris.Wrap(ErrInvalidRequest, "analysis: inputGeometry is required")
	}
	if r.Buffer < 0 {
		return eris.Wrapf(ErrInvalidRequest, "analysis: requestedBuffer must be >= 0, got %d", r.Buffer)
	}
	return nil
}

// Response is the outcome of a request across all selected datasets.
type Response struct {
	ResultList        []*Result      `json:"resultList"`
	InputGeometry     map[string]any `json:"inputGeometry"`
	InputGeometryArea float64        `json:"inputGeometryArea"`
}

// DatasetSource lists the configured datasets.
type DatasetSource interface {
	Datasets() ([]*model.DatasetConfig, error)
	Dataset(id uuid.UUID) (*model.DatasetConfig, error)
}

// Runner fans a request out over the selected datasets.
type Runner struct {
	engine        *Engine
	datasets      DatasetSource
	geo           geometry.Engine
	epsg          int
	maxConcurrent int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEPSG sets the projected reference system analyses run in.
func WithEPSG(epsg int) RunnerOption {
	return func(r *Runner) { r.epsg = epsg }
}

// WithMaxConcurrent bounds how many datasets are analyzed at once.
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) { r.maxConcurrent = n }
}

// NewRunner creates a Runner.
func NewRunner(engine *Engine, datasets DatasetSource, geo geometry.Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:        engine,
		datasets:      datasets,
		geo:           geo,
		epsg:          geometry.EPSGUTM33N,
		maxConcurrent: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run analyzes the request. A failing dataset never aborts the others: it
// is reported with status ERROR. Results keep the dataset configuration order.
func (rn *Runner) Run(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	input, origEPSG, err := geometry.DecodeGeoJSON(req.InputGeometry)
	if err != nil {
		return nil, eris.Wrap(ErrInvalidRequest, err.Error())
	}
	g, err := geometry.Reproject(ctx, rn.geo, input, rn.epsg)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: transform input geometry")
	}

	configs, err := rn.selectDatasets(req)
	if err != nil {
		return nil, err
	}

	resp := &Response{ResultList: make([]*Result, len(configs))}
	if resp.InputGeometry, err = inputGeoJSON(req.InputGeometry, origEPSG); err != nil {
		return nil, err
	}
	if resp.InputGeometryArea, err = rn.inputArea(ctx, g, req.Buffer); err != nil {
		return nil, err
	}

	opts := Options{
		IncludeGuidance: req.IncludeGuidance,
		IncludeQuality:  req.IncludeQuality,
		Context:         req.Context,
	}

	var eg errgroup.Group
	if rn.maxConcurrent > 0 {
		eg.SetLimit(rn.maxConcurrent)
	}
	for i, cfg := range configs {
		eg.Go(func() error {
			resp.ResultList[i] = rn.runOne(ctx, cfg, g, origEPSG, req.Buffer, opts)
			return nil
		})
	}
	_ = eg.Wait()

	return resp, nil
}

func (rn *Runner) runOne(ctx context.Context, cfg *model.DatasetConfig, g geom.T, origEPSG, buffer int, opts Options) *Result {
	start := time.Now()
	res := NewResult(cfg, g, rn.epsg, origEPSG, buffer)

	if err := rn.engine.Run(ctx, res, opts); err != nil {
		zap.L().Error("analysis: dataset run failed",
			zap.Stringer("dataset_id", cfg.DatasetID),
			zap.Error(err),
		)
		res.Status = model.StatusError
		rn.engine.setDefaultData(ctx, res)
	}

	metrics.ObserveAnalysis(time.Since(start), string(res.Status))
	return res
}

func (rn *Runner) selectDatasets(req Request) ([]*model.DatasetConfig, error) {
	var configs []*model.DatasetConfig
	if len(req.Datasets) > 0 {
		for _, id := range req.Datasets {
			cfg, err := rn.datasets.Dataset(id)
			if err != nil {
				return nil, eris.Wrap(ErrInvalidRequest, err.Error())
			}
			configs = append(configs, cfg)
		}
	} else {
		all, err := rn.datasets.Datasets()
		if err != nil {
			return nil, eris.Wrap(err, "analysis: list datasets")
		}
		configs = all
	}

	if req.Theme == "" {
		return configs, nil
	}
	filtered := configs[:0:0]
	for _, cfg := range configs {
		if cfg.HasTheme(req.Theme) {
			filtered = append(filtered, cfg)
		}
	}
	return filtered, nil
}

// inputArea is the area of the analyzed geometry, buffered when requested.
func (rn *Runner) inputArea(ctx context.Context, g geom.T, buffer int) (float64, error) {
	if buffer <= 0 {
		return round2(geometry.Area(g)), nil
	}
	buffered, err := rn.geo.Buffer(ctx, g, float64(buffer))
	if err != nil {
		return 0, eris.Wrap(err, "analysis: buffer input geometry")
	}
	return round2(geometry.Area(buffered)), nil
}

// inputGeoJSON echoes the caller's geometry with an explicit crs member.
func inputGeoJSON(raw json.RawMessage, epsg int) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, eris.Wrap(ErrInvalidRequest, "analysis: inputGeometry is not an object")
	}
	geometry.AddCRS(obj, epsg)
	return obj, nil
}
