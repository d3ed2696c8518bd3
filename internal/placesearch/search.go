// Package placesearch fans a category filter out into localized keyword
// searches against the Places API and merges the results into canonical
// stores.
package placesearch

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/metrics"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/resilience"
	"github.com/sells-group/storedir/pkg/google"
)

const (
	// maxPagesPerKeyword limits pagination per keyword.
	maxPagesPerKeyword = 3
	// minPerKeyword is the floor of the per-keyword cap.
	minPerKeyword = 3

	providerName = "google_places"
)

// Request describes one search around a point.
type Request struct {
	Center     geo.Point
	RadiusM    float64
	MaxResults int
	Country    keywords.Country
	Categories []model.Category
}

// KeywordStat is the outcome of one keyword.
type KeywordStat struct {
	Keyword string `json:"keyword"`
	Calls   int    `json:"calls"`
	Results int    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// Result is the merged output of a search.
type Result struct {
	Stores         []model.Store `json:"stores"`
	APICalls       int           `json:"api_calls"`
	FailedKeywords int           `json:"failed_keywords"`
	EmptyKeywords  int           `json:"empty_keywords"`
	Errors         []string      `json:"errors,omitempty"`
	Keywords       []KeywordStat `json:"keywords"`
	// TotalFailure is set when no keyword produced a single place.
	TotalFailure bool `json:"total_failure"`
}

// AllFailed reports whether nothing came back and no keyword answered
// cleanly, so every attempted call errored. Keywords that answered with
// zero places do not count as failures.
func (r *Result) AllFailed() bool {
	return r.TotalFailure && r.EmptyKeywords == 0
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithRateLimit caps provider calls per second.
func WithRateLimit(rps float64) Option {
	return func(s *Searcher) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetry sets the retry policy for provider calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Searcher) { s.retry = cfg }
}

// Searcher runs keyword searches through a google.Client.
type Searcher struct {
	client  google.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// New creates a Searcher. The default rate is 10 calls per second.
func New(client google.Client, opts ...Option) *Searcher {
	s := &Searcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(s)
	}
	s.retry.OnRetry = resilience.RetryLogger(providerName, "text_search")
	return s
}

// PerKeywordCap returns how many places to request per keyword so that the
// keywords together cover target: max(3, ceil(target/keywordCount)).
func PerKeywordCap(target, keywordCount int) int {
	if keywordCount <= 0 {
		return minPerKeyword
	}
	n := int(math.Ceil(float64(target) / float64(keywordCount)))
	return max(minPerKeyword, n)
}

// Search queries every keyword for req.Categories in req.Country and merges
// the places by id, first occurrence winning. A failed keyword is recorded
// and skipped; when nothing at all comes back the result is flagged
// TotalFailure and no error is returned.
func (s *Searcher) Search(ctx context.Context, req Request) (*Result, error) {
	if err := geo.Validate(req.Center); err != nil {
		return nil, eris.Wrap(err, "placesearch: invalid center")
	}
	if req.RadiusM <= 0 {
		return nil, eris.New("placesearch: radius must be positive")
	}
	target := req.MaxResults
	if target <= 0 {
		target = google.MaxPageSize
	}

	log := zap.L().With(zap.String("component", "placesearch"))
	locale := keywords.LocaleFor(req.Country)
	phrases := keywords.Phrases(req.Country, req.Categories)
	perKeyword := PerKeywordCap(target, len(phrases))

	res := &Result{}
	seen := make(map[string]bool)
	returned := 0

	for _, kw := range phrases {
		if len(res.Stores) >= target || ctx.Err() != nil {
			break
		}

		places, calls, err := s.searchKeyword(ctx, kw, locale, req, perKeyword)
		res.APICalls += calls
		stat := KeywordStat{Keyword: kw, Calls: calls, Results: len(places)}
		returned += len(places)

		if err != nil {
			stat.Error = err.Error()
			res.FailedKeywords++
			res.Errors = append(res.Errors, kw+": "+err.Error())
			log.Warn("placesearch: keyword failed", zap.String("keyword", kw), zap.Error(err))
		} else if len(places) == 0 {
			res.EmptyKeywords++
		}
		res.Keywords = append(res.Keywords, stat)

		for _, p := range places {
			if len(res.Stores) >= target {
				break
			}
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			res.Stores = append(res.Stores, FromPlace(p))
		}
	}

	res.TotalFailure = len(phrases) > 0 && returned == 0
	if res.TotalFailure {
		log.Warn("placesearch: no keyword returned results",
			zap.Int("keywords", len(phrases)),
			zap.Int("failed", res.FailedKeywords),
		)
	}
	return res, nil
}

// searchKeyword paginates one keyword until limit places, no next page, or
// maxPagesPerKeyword pages. Permanently closed places are dropped.
func (s *Searcher) searchKeyword(ctx context.Context, kw string, locale keywords.Locale, req Request, limit int) ([]google.Place, int, error) {
	var (
		places    []google.Place
		pageToken string
		calls     int
	)

	for page := 0; page < maxPagesPerKeyword && len(places) < limit; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return places, calls, eris.Wrap(err, "placesearch: rate limit wait")
		}

		tsr := google.TextSearchRequest{
			TextQuery:    kw,
			LanguageCode: locale.Language,
			RegionCode:   locale.Region,
			PageSize:     min(google.MaxPageSize, limit-len(places)),
			PageToken:    pageToken,
			LocationBias: &google.LocationArea{Circle: google.Circle{
				Center: google.LatLng{Latitude: req.Center.Lat, Longitude: req.Center.Lng},
				Radius: req.RadiusM,
			}},
		}

		resp, err := s.textSearch(ctx, tsr, &calls)
		if err != nil {
			return places, calls, eris.Wrap(err, "placesearch: text search")
		}

		for _, p := range resp.Places {
			if p.ClosedPermanently() {
				continue
			}
			places = append(places, p)
			if len(places) >= limit {
				break
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return places, calls, nil
}

// textSearch performs one logical call with retries. Every attempt counts
// as a billed call.
func (s *Searcher) textSearch(ctx context.Context, req google.TextSearchRequest, calls *int) (*google.SearchResponse, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*google.SearchResponse, error) {
		start := time.Now()
		resp, err := s.client.TextSearch(ctx, req)
		*calls++
		metrics.ProviderCallsTotal.WithLabelValues(providerName, metrics.Outcome(err)).Inc()
		metrics.ProviderDurationMs.WithLabelValues(providerName).Observe(float64(time.Since(start).Milliseconds()))
		return resp, err
	})
}

// FromPlace converts a place into an auto-sourced store.
func FromPlace(p google.Place) model.Store {
	cat, detection := Classify(p.DisplayName.Text, p.Types)
	st := model.Store{
		PlaceID:           model.StringPtr(p.ID),
		Name:              p.DisplayName.Text,
		Address:           p.FormattedAddress,
		Phone:             p.Phone(),
		Website:           p.WebsiteURI,
		Category:          cat,
		CategoryDetection: detection,
		Source:            model.SourceAuto,
		BusinessStatus:    p.BusinessStatus,
	}
	if p.Location != nil {
		st.Latitude = p.Location.Latitude
		st.Longitude = p.Location.Longitude
	}
	return st
}
