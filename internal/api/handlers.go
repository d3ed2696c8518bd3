package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/storedir/internal/discovery"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/model"
)

type discoveryRunBody struct {
	credentials
	Country        string   `json:"country"`
	State          string   `json:"state"`
	City           string   `json:"city"`
	MaxResults     int      `json:"maxResults"`
	MaxZones       int      `json:"maxZones"`
	Categories     []string `json:"categories"`
	UseLegacyZones bool     `json:"useLegacyZones"`
}

type discoveryNeighborhoodsBody struct {
	credentials
	NeighborhoodIDs []int64  `json:"neighborhoodIds"`
	Categories      []string `json:"categories"`
}

func (s *Server) handleDiscoveryRun(w http.ResponseWriter, r *http.Request) {
	var body discoveryRunBody
	if !decode(w, r, &body) {
		return
	}
	if !s.authorized(body.credentials) {
		unauthorized(w)
		return
	}

	fields := map[string]string{}
	cats := parseCategories(body.Categories, fields)
	if body.MaxResults < 0 {
		fields["maxResults"] = "must be >= 0"
	}
	if body.MaxZones < 0 {
		fields["maxZones"] = "must be >= 0"
	}
	checkCountry(body.Country, fields)
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}

	s.runDiscovery(w, r, discovery.RunRequest{
		Country:        body.Country,
		State:          body.State,
		City:           body.City,
		MaxResults:     body.MaxResults,
		MaxZones:       body.MaxZones,
		Categories:     cats,
		UseLegacyZones: body.UseLegacyZones,
	})
}

func (s *Server) handleDiscoveryNeighborhoods(w http.ResponseWriter, r *http.Request) {
	var body discoveryNeighborhoodsBody
	if !decode(w, r, &body) {
		return
	}
	if !s.authorized(body.credentials) {
		unauthorized(w)
		return
	}

	fields := map[string]string{}
	cats := parseCategories(body.Categories, fields)
	if len(body.NeighborhoodIDs) == 0 {
		fields["neighborhoodIds"] = "at least one neighborhood is required"
	}
	for _, id := range body.NeighborhoodIDs {
		if id <= 0 {
			fields["neighborhoodIds"] = "ids must be positive"
			break
		}
	}
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}

	s.runDiscovery(w, r, discovery.RunRequest{
		NeighborhoodIDs: body.NeighborhoodIDs,
		Categories:      cats,
	})
}

func (s *Server) runDiscovery(w http.ResponseWriter, r *http.Request, req discovery.RunRequest) {
	resp, err := s.discoverer.Run(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case isRequestError(err):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"fields": map[string]string{"scope": err.Error()},
			"runId":  runID(resp),
		})
	default:
		zap.L().Error("api: discovery run failed", zap.Error(err))
		if resp == nil {
			writeError(w, http.StatusInternalServerError, "discovery failed")
			return
		}
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// checkCountry flags a country filter that names no known country.
func checkCountry(country string, fields map[string]string) {
	if _, err := keywords.ResolveFilter(country); err != nil {
		fields["country"] = "unknown country"
	}
}

func runID(resp *discovery.RunResponse) string {
	if resp == nil {
		return ""
	}
	return resp.RunID
}

type neighborhoodView struct {
	model.Neighborhood
	NextLimit int `json:"nextLimit"`
}

func (s *Server) handleNeighborhoods(w http.ResponseWriter, r *http.Request) {
	cityID, ok := queryInt(r, "cityId", 0)
	if !ok {
		writeFields(w, map[string]string{"cityId": "must be a non-negative integer"})
		return
	}
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeFields(w, map[string]string{"limit": "must be a non-negative integer"})
		return
	}

	q := r.URL.Query()
	fields := map[string]string{}
	checkCountry(q.Get("country"), fields)
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}
	list, err := s.directory.ListNeighborhoods(r.Context(), discovery.NeighborhoodFilter{
		Country: q.Get("country"),
		State:   q.Get("state"),
		City:    q.Get("city"),
		CityID:  int64(cityID),
		Limit:   limit,
	})
	if err != nil {
		zap.L().Error("api: list neighborhoods", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list neighborhoods")
		return
	}

	out := make([]neighborhoodView, 0, len(list))
	for _, n := range list {
		out = append(out, neighborhoodView{Neighborhood: n, NextLimit: discovery.NextLimit(n.ApurationCount)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"neighborhoods": out})
}

type stateView struct {
	model.StateSummary
	NextLimit int `json:"nextLimit"`
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	fields := map[string]string{}
	checkCountry(country, fields)
	if len(fields) > 0 {
		writeFields(w, fields)
		return
	}
	list, err := s.directory.ListStates(r.Context(), country)
	if err != nil {
		zap.L().Error("api: list states", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list states")
		return
	}

	out := make([]stateView, 0, len(list))
	for _, st := range list {
		out = append(out, stateView{StateSummary: st, NextLimit: discovery.NextLimit(st.MinApurationCount)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": out})
}

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	rows, err := s.stores.SourceCounts(r.Context())
	if err != nil {
		zap.L().Error("api: source counts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load source stats")
		return
	}
	if rows == nil {
		rows = []model.SourceCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": rows})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		writeFields(w, map[string]string{"limit": "must be a non-negative integer"})
		return
	}
	runs, err := s.directory.ListRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
