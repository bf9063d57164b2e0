package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"BandWatch/internal/collector"
	"BandWatch/internal/model"
	"BandWatch/internal/strategy"
)

const (
	CookieName = "bw_session"
	HeaderName = "X-Session-ID"
)

// ErrNoSeries is returned by Derive before anything has been fetched.
var ErrNoSeries = errors.New("fetch data for a pair first")

// State is one user's dashboard state: the fetched series and what was
// derived from it.
type State struct {
	ID        string              `json:"id"`
	Pair      string              `json:"pair"`
	Range     collector.RangeSpec `json:"range"`
	Params    model.BandParams    `json:"params"`
	Series    *model.PriceSeries  `json:"series,omitempty"`
	Analysis  *model.Analysis     `json:"analysis,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// New returns an empty state with a fresh id and default params.
func New() *State {
	return &State{
		ID:        uuid.NewString(),
		Params:    model.DefaultBandParams(),
		UpdatedAt: time.Now(),
	}
}

// Fetch replaces the series and drops the analysis derived from the old one.
func (s *State) Fetch(series *model.PriceSeries, spec collector.RangeSpec) {
	s.Series = series
	s.Pair = series.Pair
	s.Range = spec
	s.Analysis = nil
	s.UpdatedAt = time.Now()
}

// Derive recomputes the analysis from the stored series. Params are kept
// even when the series is too short, so a later fetch uses them.
func (s *State) Derive(params model.BandParams) (*model.Analysis, error) {
	if s.Series == nil {
		return nil, ErrNoSeries
	}
	s.Params = params
	s.Analysis = nil
	s.UpdatedAt = time.Now()

	a, err := strategy.Analyze(s.Series, params)
	if err != nil {
		return nil, err
	}
	s.Analysis = a
	return a, nil
}

// IDFromRequest reads the session id from the header, then the cookie.
// Ids that are not UUIDs are ignored.
func IDFromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(HeaderName))
	if id == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			id = c.Value
		}
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

// SetCookie attaches the session id to the response.
func SetCookie(w http.ResponseWriter, id string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(HeaderName, id)
}
