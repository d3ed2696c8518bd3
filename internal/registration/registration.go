// Package registration validates and stores user-submitted stores. A
// submission is matched against the places provider, geocoded, checked
// against the caller's coordinates, and either upgrades an auto-discovered
// row or creates a new one.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storedir/internal/db"
	"github.com/sells-group/storedir/internal/geo"
	"github.com/sells-group/storedir/internal/keywords"
	"github.com/sells-group/storedir/internal/metrics"
	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/placesearch"
	"github.com/sells-group/storedir/internal/store"
	"github.com/sells-group/storedir/pkg/geocode"
	"github.com/sells-group/storedir/pkg/google"
)

// DefaultThresholdM is how far submitted coordinates may sit from the
// geocoded address before the caller must choose.
const DefaultThresholdM = 1000.0

// Coordinate choices for a resubmission after a conflict.
const (
	UseGeocoded = "use_geocoded"
	UseProvided = "use_provided"
)

// nearbyRadiusM bounds the coordinate fallback of the business lookup.
const nearbyRadiusM = 50.0

var nearbyTypes = []string{"hardware_store", "home_improvement_store", "home_goods_store"}

// Request is a store submission.
type Request struct {
	Username     string   `json:"username"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	Category     string   `json:"category,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	Country      string   `json:"country,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`

	// UseGoogleData answers the business match prompt. Nil means unanswered.
	UseGoogleData      *bool  `json:"useGoogleData,omitempty"`
	ConfirmCoordinates string `json:"confirmCoordinates,omitempty"`
}

// Outcome is the kind of successful result.
type Outcome string

const (
	OutcomeAwaitingChoice Outcome = "awaiting_choice"
	OutcomeUpgraded       Outcome = "upgraded"
	OutcomeCreated        Outcome = "created"
)

// Result is a successful registration step.
type Result struct {
	Outcome  Outcome      `json:"outcome"`
	Business *model.Store `json:"business,omitempty"`
	Store    *model.Store `json:"store,omitempty"`
	Upgraded bool         `json:"upgraded"`
}

// ValidationError lists rejected fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return "registration: invalid fields " + strings.Join(keys, ", ")
}

// CoordinateConflict is returned when the submitted point is too far from
// the geocoded address and the caller has not chosen between them.
type CoordinateConflict struct {
	Geocoded   geo.Point `json:"geocoded"`
	Provided   geo.Point `json:"provided"`
	DistanceM  float64   `json:"distanceM"`
	ThresholdM float64   `json:"thresholdM"`
}

func (e *CoordinateConflict) Error() string {
	return fmt.Sprintf("registration: coordinates %.0fm from geocoded address (limit %.0fm)", e.DistanceM, e.ThresholdM)
}

// PersistenceError wraps a database failure with its classification.
type PersistenceError struct {
	Kind db.ErrorKind
	Err  error
}

func (e *PersistenceError) Error() string { return e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store is the persistence the flow needs.
type Store interface {
	FindByPlaceID(ctx context.Context, placeID string) (*model.Store, error)
	UpgradeToVerified(ctx context.Context, id, userID int64, patch model.Store) (*model.Store, error)
	UpsertUser(ctx context.Context, username string) (*model.User, error)
	CreateStore(ctx context.Context, s model.Store) (int64, error)
}

// Service runs the registration flow.
type Service struct {
	store      Store
	places     google.Client
	geocoder   geocode.Client
	thresholdM float64
}

// NewService creates a Service. thresholdM <= 0 uses DefaultThresholdM.
func NewService(st Store, places google.Client, geocoder geocode.Client, thresholdM float64) *Service {
	if thresholdM <= 0 {
		thresholdM = DefaultThresholdM
	}
	return &Service{store: st, places: places, geocoder: geocoder, thresholdM: thresholdM}
}

// Register runs one step of the flow. Errors are *ValidationError,
// *CoordinateConflict or *PersistenceError; anything else is unexpected.
func (s *Service) Register(ctx context.Context, req Request) (*Result, error) {
	res, err := s.register(ctx, req)
	metrics.RegistrationsTotal.WithLabelValues(outcomeLabel(res, err)).Inc()
	return res, err
}

func (s *Service) register(ctx context.Context, req Request) (*Result, error) {
	log := zap.L().With(zap.String("component", "registration"), zap.String("username", req.Username))

	req = normalize(req)
	provided, err := validate(req)
	if err != nil {
		return nil, err
	}
	locale := keywords.LocaleFor(keywords.Resolve(req.Country).Country)

	// 1. Business lookup.
	var business *model.Store
	if req.UseGoogleData == nil || *req.UseGoogleData {
		business = s.lookupBusiness(ctx, req, locale, provided)
		if business != nil && req.UseGoogleData == nil {
			return &Result{Outcome: OutcomeAwaitingChoice, Business: business}, nil
		}
	}

	// 2. Geocode.
	gr, err := s.geocoder.Geocode(ctx, req.Address)
	if err != nil {
		log.Warn("registration: geocode failed", zap.Error(err))
		return nil, &ValidationError{Fields: map[string]string{"address": "address could not be geocoded"}}
	}
	if !gr.Matched {
		return nil, &ValidationError{Fields: map[string]string{"address": "address not found"}}
	}
	geocoded := geo.Point{Lat: gr.Latitude, Lng: gr.Longitude}

	// 3. Coordinate check.
	point := geocoded
	if provided != nil {
		check := geo.CheckCoordinates(*provided, geocoded, s.thresholdM)
		switch {
		case check.Valid:
			point = *provided
		case req.ConfirmCoordinates == UseGeocoded:
			point = geocoded
		case req.ConfirmCoordinates == UseProvided:
			point = *provided
		default:
			return nil, &CoordinateConflict{
				Geocoded:   geocoded,
				Provided:   *provided,
				DistanceM:  check.DistanceM,
				ThresholdM: s.thresholdM,
			}
		}
	}

	candidate := s.buildStore(req, business, gr, point)

	// 4. Upgrade an auto-discovered row in place.
	if business != nil {
		existing, err := s.store.FindByPlaceID(ctx, business.ExternalID())
		switch {
		case eris.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, persistence(err)
		case existing.Source == model.SourceAuto:
			user, err := s.store.UpsertUser(ctx, req.Username)
			if err != nil {
				return nil, persistence(err)
			}
			upgraded, err := s.store.UpgradeToVerified(ctx, existing.ID, user.ID, candidate)
			if err != nil {
				return nil, persistence(err)
			}
			log.Info("registration: upgraded auto store", zap.Int64("store_id", upgraded.ID))
			return &Result{Outcome: OutcomeUpgraded, Store: upgraded, Upgraded: true}, nil
		}
	}

	// 5. Insert.
	user, err := s.store.UpsertUser(ctx, req.Username)
	if err != nil {
		return nil, persistence(err)
	}
	candidate.UserID = &user.ID
	id, err := s.store.CreateStore(ctx, candidate)
	if err != nil {
		return nil, persistence(err)
	}
	candidate.ID = id
	log.Info("registration: store created", zap.Int64("store_id", id))
	return &Result{Outcome: OutcomeCreated, Store: &candidate}, nil
}

// lookupBusiness searches "<name> <address>", then the address alone, then
// hardware-type places right at the submitted point. Provider errors count
// as no match.
func (s *Service) lookupBusiness(ctx context.Context, req Request, locale keywords.Locale, at *geo.Point) *model.Store {
	log := zap.L().With(zap.String("component", "registration"))

	for _, q := range []string{req.Name + " " + req.Address, req.Address} {
		resp, err := s.places.TextSearch(ctx, google.TextSearchRequest{
			TextQuery:    q,
			LanguageCode: locale.Language,
			RegionCode:   locale.Region,
			PageSize:     1,
		})
		if err != nil {
			log.Warn("registration: business lookup failed", zap.String("query", q), zap.Error(err))
			continue
		}
		if p := firstOpen(resp); p != nil {
			st := placesearch.FromPlace(*p)
			return &st
		}
	}

	if at == nil {
		return nil
	}
	resp, err := s.places.NearbySearch(ctx, google.NearbySearchRequest{
		IncludedTypes:  nearbyTypes,
		MaxResultCount: 1,
		LanguageCode:   locale.Language,
		RegionCode:     locale.Region,
		LocationRestriction: google.LocationArea{Circle: google.Circle{
			Center: google.LatLng{Latitude: at.Lat, Longitude: at.Lng},
			Radius: nearbyRadiusM,
		}},
	})
	if err != nil {
		log.Warn("registration: nearby lookup failed", zap.Error(err))
		return nil
	}
	if p := firstOpen(resp); p != nil {
		st := placesearch.FromPlace(*p)
		return &st
	}
	return nil
}

func firstOpen(resp *google.SearchResponse) *google.Place {
	if resp == nil {
		return nil
	}
	for i := range resp.Places {
		if resp.Places[i].ID != "" && !resp.Places[i].ClosedPermanently() {
			return &resp.Places[i]
		}
	}
	return nil
}

// buildStore merges the submission with the chosen business and geocoder
// output. Submitted values win; provider values fill the gaps.
func (s *Service) buildStore(req Request, business *model.Store, gr *geocode.Result, point geo.Point) model.Store {
	st := model.Store{
		Name:         req.Name,
		Address:      req.Address,
		Phone:        req.Phone,
		Website:      req.Website,
		Latitude:     point.Lat,
		Longitude:    point.Lng,
		Neighborhood: req.Neighborhood,
		Source:       model.SourceUser,
	}
	if d := gr.Components.District(); d != "" {
		st.Neighborhood = d
	}
	if gr.FormattedAddress != "" {
		st.Address = gr.FormattedAddress
	}

	if business != nil {
		st.PlaceID = business.PlaceID
		st.BusinessStatus = business.BusinessStatus
		if st.Name == "" {
			st.Name = business.Name
		}
		if st.Phone == "" {
			st.Phone = business.Phone
		}
		if st.Website == "" {
			st.Website = business.Website
		}
	}

	cat, ok := model.ParseCategory(keywords.Fold(req.Category))
	switch {
	case ok:
		st.Category, st.CategoryDetection = cat, "user"
	case business != nil && business.Category != model.CategoryUnknown:
		st.Category, st.CategoryDetection = business.Category, business.CategoryDetection
	default:
		st.Category, st.CategoryDetection = placesearch.Classify(st.Name, nil)
	}
	return st
}

func normalize(req Request) Request {
	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Website = strings.TrimSpace(req.Website)
	req.Neighborhood = strings.TrimSpace(req.Neighborhood)
	req.ConfirmCoordinates = strings.TrimSpace(req.ConfirmCoordinates)
	return req
}

// validate checks required fields and returns the submitted point, if any.
func validate(req Request) (*geo.Point, error) {
	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "required"
	}
	if req.Name == "" {
		fields["name"] = "required"
	}
	if req.Address == "" {
		fields["address"] = "required"
	}
	switch req.ConfirmCoordinates {
	case "", UseGeocoded, UseProvided:
	default:
		fields["confirmCoordinates"] = "must be use_geocoded or use_provided"
	}
	if req.Category != "" {
		if _, ok := model.ParseCategory(keywords.Fold(req.Category)); !ok {
			fields["category"] = "unknown category"
		}
	}

	var point *geo.Point
	switch {
	case req.Latitude == nil && req.Longitude == nil:
	case req.Latitude == nil || req.Longitude == nil:
		fields["coordinates"] = "latitude and longitude must be sent together"
	default:
		p := geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
		if err := geo.Validate(p); err != nil {
			fields["coordinates"] = err.Error()
		} else {
			point = &p
		}
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return point, nil
}

func persistence(err error) error {
	return &PersistenceError{Kind: db.ClassifyError(err), Err: eris.Wrap(err, "registration: persist")}
}

func outcomeLabel(res *Result, err error) string {
	var (
		verr *ValidationError
		cerr *CoordinateConflict
		perr *PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &cerr):
		return "coordinate_conflict"
	case errors.As(err, &perr):
		return "db_error"
	case err != nil:
		return "error"
	case res != nil:
		return string(res.Outcome)
	default:
		return "unknown"
	}
}
