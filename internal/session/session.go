package session

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go-sales-insights/internal/model"
	"go-sales-insights/internal/pipeline"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrNoData          = errors.New("no file uploaded")
	ErrNotPrepared     = errors.New("dataset not prepared")
	ErrUnknownArtifact = errors.New("unknown export artifact")
)

// Export artifacts served for a session
const (
	ArtifactFilteredCSV = "filtered.csv"
	ArtifactKPISummary  = "kpi_summary.csv"
	ArtifactCharts      = "charts.zip"
	ArtifactWorkbook    = "report.xlsx"
)

// History records successful uploads
type History interface {
	SaveUpload(u *model.Upload) error
}

// Options configure every session a manager creates
type Options struct {
	DateThreshold float64
	ProductLimit  int
	Summary       pipeline.SummaryOptions
	Presets       map[string]model.Mapping
	History       History
	Logger        logrus.FieldLogger
}

// Session is the working state of one user: the uploaded table, the committed
// mapping and the current filter view. Methods are safe for concurrent use and
// run one at a time.
type Session struct {
	mu sync.Mutex

	ID        string
	Username  string
	CreatedAt time.Time

	opts    Options
	log     logrus.FieldLogger
	tracker *pipeline.Tracker

	filename string
	raw      *model.Table
	proposed model.Mapping
	mapping  model.Mapping
	prepared *pipeline.Prepared
	selected model.Selection
	result   *pipeline.Result
	charts   map[string][]byte
}

// Info is a JSON snapshot of a session
type Info struct {
	ID             string                 `json:"id"`
	Username       string                 `json:"username"`
	CreatedAt      time.Time              `json:"created_at"`
	Filename       string                 `json:"filename,omitempty"`
	Columns        []string               `json:"columns,omitempty"`
	RawRows        int                    `json:"raw_rows"`
	Proposed       model.Mapping          `json:"proposed_mapping,omitempty"`
	Mapping        model.Mapping          `json:"mapping,omitempty"`
	Prepared       bool                   `json:"prepared"`
	RevenueSource  pipeline.RevenueSource `json:"revenue_source,omitempty"`
	CanonicalRows  int                    `json:"canonical_rows"`
	DroppedRows    int                    `json:"dropped_rows"`
	CategoryValues map[string][]string    `json:"category_values,omitempty"`
	DateBounds     *model.DateRange       `json:"date_bounds,omitempty"`
	Selection      *model.Selection       `json:"selection,omitempty"`
	FilteredRows   int                    `json:"filtered_rows"`
	Charts         []string               `json:"charts"`
	Stages         []model.StageMetrics   `json:"stages"`
}

func newSession(username string, opts Options) *Session {
	id := uuid.New().String()
	log := opts.Logger.WithFields(logrus.Fields{"session": id, "user": username})
	return &Session{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now(),
		opts:      opts,
		log:       log,
		tracker:   pipeline.NewTracker(log),
		charts:    map[string][]byte{},
	}
}

// ------------------- Upload -------------------

// Load parses an upload, proposes a mapping and logs it in the history. Any
// earlier dataset, mapping and view are discarded.
func (s *Session) Load(filename string, data []byte, preset string) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracker.Reset()
	var raw *model.Table
	err := s.tracker.Stage(pipeline.StageIngest, 0, func() (int, error) {
		var err error
		raw, err = pipeline.Load(filename, data)
		return raw.Len(), err
	})
	if err != nil {
		return Info{}, err
	}

	proposed := pipeline.ProposeMapping(raw, s.opts.DateThreshold)
	if preset != "" {
		p, ok := s.opts.Presets[preset]
		if !ok {
			return Info{}, fmt.Errorf("%w: unknown preset %q", model.ErrInvalidMapping, preset)
		}
		proposed = pipeline.ApplyPreset(raw, proposed, p)
	}

	s.filename = filename
	s.raw = raw
	s.proposed = proposed
	s.mapping = nil
	s.prepared = nil
	s.selected = model.Selection{}
	s.result = nil
	s.charts = map[string][]byte{}

	if s.opts.History != nil {
		u := &model.Upload{
			Username: s.Username,
			Filename: filename,
			Rows:     raw.Len(),
			Cols:     len(raw.Columns),
			Checksum: pipeline.Checksum(data),
		}
		if err := s.opts.History.SaveUpload(u); err != nil {
			s.log.WithError(err).Warn("failed to record upload")
		}
	}

	s.log.WithFields(logrus.Fields{"file": filename, "rows": raw.Len(), "cols": len(raw.Columns)}).Info("file loaded")
	return s.infoLocked(), nil
}

// ------------------- Prepare -------------------

// Prepare commits a mapping and builds the canonical table, replacing any
// earlier one. The filter view is reset to the defaults.
func (s *Session) Prepare(m model.Mapping) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.raw == nil {
		return Info{}, ErrNoData
	}
	p, err := pipeline.Prepare(s.raw, m, s.tracker)
	if err != nil {
		return Info{}, err
	}

	s.mapping = cloneMapping(m)
	s.prepared = p
	s.selected = model.Selection{}
	if err := s.runLocked(); err != nil {
		return Info{}, err
	}

	s.log.WithFields(logrus.Fields{
		"revenue_source": p.RevenueSource,
		"rows":           p.Canonical.Len(),
		"dropped":        p.DroppedRows,
	}).Info("dataset prepared")
	return s.infoLocked(), nil
}

// ------------------- Filter -------------------

// Apply replaces the filter selection and recomputes the view from the
// canonical table
func (s *Session) Apply(sel model.Selection) (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prepared == nil {
		return nil, ErrNotPrepared
	}
	prev := s.selected
	s.selected = sel.Clone()
	if err := s.runLocked(); err != nil {
		s.selected = prev
		return nil, err
	}
	return s.result, nil
}

// Result returns the current view
func (s *Session) Result() (*pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, ErrNotPrepared
	}
	return s.result, nil
}

func (s *Session) runLocked() error {
	res, err := pipeline.Run(s.prepared.Canonical, s.selected, pipeline.RunOptions{
		ProductLimit: s.opts.ProductLimit,
		Summary:      s.opts.Summary,
	}, s.tracker)
	if err != nil {
		return err
	}
	s.result = res
	return nil
}

// ------------------- Charts & Export -------------------

// SetChart stores a rendered chart image under one of the conventional names
func (s *Session) SetChart(name string, png []byte) error {
	if !pipeline.IsChartName(name) {
		return fmt.Errorf("%w: %q", pipeline.ErrUnknownChart, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	img := make([]byte, len(png))
	copy(img, png)
	s.charts[name] = img
	return nil
}

// Export writes one artifact of the current view to w and returns the file
// name it should be downloaded as
func (s *Session) Export(artifact string, w io.Writer) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return "", ErrNotPrepared
	}

	var (
		name string
		err  error
	)
	_ = s.tracker.Stage(pipeline.StageExport, s.result.Filtered.Len(), func() (int, error) {
		switch artifact {
		case ArtifactFilteredCSV:
			name, err = pipeline.FilteredCSVName, pipeline.WriteCSV(w, s.result.Filtered)
		case ArtifactKPISummary:
			name, err = pipeline.KPISummaryName, pipeline.WriteKPISummary(w, s.result.Summary.KPIs)
		case ArtifactCharts:
			name, err = pipeline.ChartsZipName, pipeline.WriteChartArchive(w, s.charts)
		case ArtifactWorkbook:
			name, err = pipeline.WorkbookName, pipeline.WriteWorkbook(w, s.result.Filtered, s.result.Summary.KPIs)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownArtifact, artifact)
		}
		return s.result.Filtered.Len(), err
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// ------------------- Snapshot -------------------

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *Session) infoLocked() Info {
	info := Info{
		ID:        s.ID,
		Username:  s.Username,
		CreatedAt: s.CreatedAt,
		Filename:  s.filename,
		Proposed:  s.proposed,
		Mapping:   s.mapping,
		Charts:    []string{},
		Stages:    s.tracker.Metrics(),
	}
	if s.raw != nil {
		info.Columns = append([]string(nil), s.raw.Columns...)
		info.RawRows = s.raw.Len()
	}
	if s.prepared != nil {
		canonical := s.prepared.Canonical
		info.Prepared = true
		info.RevenueSource = s.prepared.RevenueSource
		info.CanonicalRows = canonical.Len()
		info.DroppedRows = s.prepared.DroppedRows
		info.CategoryValues = map[string][]string{}
		for _, r := range model.CategoryRoles() {
			if canonical.Has(r.Column()) {
				info.CategoryValues[string(r)] = pipeline.CategoryValues(canonical, r)
			}
		}
		if rng, ok := pipeline.DateBounds(canonical); ok {
			info.DateBounds = &rng
		}
	}
	if s.result != nil {
		sel := s.result.Selection.Clone()
		info.Selection = &sel
		info.FilteredRows = s.result.Filtered.Len()
	}
	for name := range s.charts {
		info.Charts = append(info.Charts, name)
	}
	sort.Strings(info.Charts)
	return info
}

func cloneMapping(m model.Mapping) model.Mapping {
	out := make(model.Mapping, len(m))
	for r, c := range m {
		out[r] = c
	}
	return out
}
