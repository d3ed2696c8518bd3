package registration

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/storedir/internal/model"
	"github.com/sells-group/storedir/internal/store"
	"github.com/sells-group/storedir/pkg/geocode"
)

// fakeStore keeps stores keyed by place id and records writes.
type fakeStore struct {
	byPlace   map[string]*model.Store
	created   []model.Store
	upgraded  []model.Store
	users     []string
	createErr error
	findErr   error
	nextID    int64
}

func newFakeStore(existing ...model.Store) *fakeStore {
	f := &fakeStore{byPlace: map[string]*model.Store{}, nextID: 100}
	for i := range existing {
		s := existing[i]
		f.byPlace[s.ExternalID()] = &s
	}
	return f
}

func (f *fakeStore) FindByPlaceID(_ context.Context, placeID string) (*model.Store, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	s, ok := f.byPlace[placeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) UpgradeToVerified(_ context.Context, id, userID int64, patch model.Store) (*model.Store, error) {
	for _, s := range f.byPlace {
		if s.ID != id {
			continue
		}
		if s.Phone == "" {
			s.Phone = patch.Phone
		}
		if s.Website == "" {
			s.Website = patch.Website
		}
		s.Source = model.SourceVerified
		s.Verified = true
		s.UserID = &userID
		f.upgraded = append(f.upgraded, *s)
		cp := *s
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpsertUser(_ context.Context, username string) (*model.User, error) {
	f.users = append(f.users, username)
	return &model.User{ID: int64(len(f.users)), Username: username, Role: model.RoleUser}, nil
}

func (f *fakeStore) CreateStore(_ context.Context, s model.Store) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	s.ID = f.nextID
	f.created = append(f.created, s)
	return s.ID, nil
}

// fakeGeocoder resolves every address to result, or fails with err.
type fakeGeocoder struct {
	result *geocode.Result
	err    error
	calls  int
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ string) (*geocode.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeGeocoder) Reverse(_ context.Context, _, _ float64) (*geocode.Result, error) {
	return nil, eris.New("not implemented")
}
