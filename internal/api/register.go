package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/storedir/internal/registration"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registration.Request
	if !decode(w, r, &req) {
		return
	}

	res, err := s.registrar.Register(r.Context(), req)
	if err != nil {
		writeRegistrationError(w, err)
		return
	}

	switch res.Outcome {
	case registration.OutcomeCreated:
		writeJSON(w, http.StatusCreated, map[string]any{
			"success":  true,
			"store":    res.Store,
			"upgraded": false,
		})
	case registration.OutcomeUpgraded:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"store":    res.Store,
			"upgraded": true,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        false,
			"awaitingChoice": true,
			"business":       res.Business,
			"message":        "a matching business was found; resubmit with useGoogleData",
		})
	}
}

func writeRegistrationError(w http.ResponseWriter, err error) {
	var (
		verr *registration.ValidationError
		cerr *registration.CoordinateConflict
		perr *registration.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		writeFields(w, verr.Fields)
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "coordinates disagree with the geocoded address",
			"distanceM":  cerr.DistanceM,
			"thresholdM": cerr.ThresholdM,
			"options": map[string]any{
				registration.UseGeocoded: cerr.Geocoded,
				registration.UseProvided: cerr.Provided,
			},
		})
	case errors.As(err, &perr):
		zap.L().Error("api: registration persistence", zap.String("kind", string(perr.Kind)), zap.Error(perr.Err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "failed to save store",
			"kind":  perr.Kind,
		})
	default:
		zap.L().Error("api: registration failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
	}
}
