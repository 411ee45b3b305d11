package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"firequest/pipeline"
)

// predictRequest uses pointers so that a missing field is distinguishable
// from an explicit zero.
type predictRequest struct {
	Brightness *float64 `json:"brightness" validate:"required"`
	BrightT31  *float64 `json:"bright_t31" validate:"required"`
	FRP        *float64 `json:"frp" validate:"required"`
	Scan       *float64 `json:"scan" validate:"required"`
	Track      *float64 `json:"track" validate:"required"`
	Confidence string   `json:"confidence" validate:"required"`
}

func (req predictRequest) reading() (pipeline.Reading, error) {
	level, err := pipeline.ParseConfidenceLevel(req.Confidence)
	if err != nil {
		return pipeline.Reading{}, err
	}
	return pipeline.Reading{
		Brightness: *req.Brightness,
		BrightT31:  *req.BrightT31,
		FRP:        *req.FRP,
		Scan:       *req.Scan,
		Track:      *req.Track,
		Confidence: level,
	}, nil
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.sessionError(w, r, err)
		return
	}

	var req predictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", validationMessage(err))
		return
	}
	reading, err := req.reading()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_confidence", err.Error())
		return
	}

	resp, err := h.Pipeline.Run(r.Context(), s, reading)
	if err != nil {
		h.predictError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) predictError(w http.ResponseWriter, r *http.Request, err error) {
	var scalingErr *pipeline.ScalingError
	var predictionErr *pipeline.PredictionError
	switch {
	case errors.Is(err, pipeline.ErrInvalidConfidence):
		writeError(w, r, http.StatusBadRequest, "invalid_confidence", err.Error())
	case errors.As(err, &scalingErr):
		writeError(w, r, http.StatusUnprocessableEntity, "scaling_error", err.Error())
	case errors.As(err, &predictionErr):
		writeError(w, r, http.StatusInternalServerError, "prediction_error", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fe.Field() + " is " + fe.Tag()
}
