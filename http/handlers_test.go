package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firequest/db"
	"firequest/ml"
	"firequest/monitoring"
	"firequest/pipeline"
	"firequest/session"
)

type fakeModel struct {
	label        int
	proba        []float64
	transformErr error
	predictErr   error
}

func (f *fakeModel) Transform(features []float64) ([]float64, error) {
	return features, f.transformErr
}

func (f *fakeModel) Predict(features []float64) (int, error) {
	return f.label, f.predictErr
}

func (f *fakeModel) PredictProba(features []float64) ([]float64, error) {
	if f.proba == nil {
		return nil, ml.ErrProbabilitiesUnsupported
	}
	return f.proba, nil
}

func (f *fakeModel) SupportsConfidence() bool { return f.proba != nil }

type fakeAudit struct {
	records []db.PredictionRecord
	limit   int
}

func (f *fakeAudit) RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error) {
	f.limit = limit
	return f.records, nil
}

type testServer struct {
	handler  http.Handler
	sessions *session.Manager
	model    *fakeModel
}

func newTestServer(t *testing.T, model *fakeModel, audit AuditReader) *testServer {
	t.Helper()
	sessions := session.NewManager(session.DefaultConfig(), nil)
	handler := NewRouter(DefaultServerConfig(), Deps{
		Pipeline: pipeline.New(model, nil),
		Sessions: sessions,
		Model:    model,
		Audit:    audit,
	})
	return &testServer{handler: handler, sessions: sessions, model: model}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) newSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	id, _ := payload["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

const scenarioBody = `{"brightness":320,"bright_t31":300,"frp":20,"scan":1,"track":1,"confidence":"nominal"}`

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	return payload
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	payload := decode(t, w)
	detail, ok := payload["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return detail["code"].(string)
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t, &fakeModel{proba: []float64{1}}, nil)

	w := ts.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	payload := decode(t, w)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, true, payload["confidence_scores"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestDefaultsHandler(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)

	w := ts.do(t, http.MethodGet, "/api/defaults", "")
	require.Equal(t, http.StatusOK, w.Code)
	payload := decode(t, w)
	assert.Equal(t, 300.0, payload["brightness"])
	assert.Equal(t, 15.0, payload["frp"])
	assert.Equal(t, "low", payload["confidence"])
}

func TestHandlePredict(t *testing.T) {
	ts := newTestServer(t, &fakeModel{label: 2, proba: []float64{0.25, 0.75}}, nil)
	id := ts.newSession(t)

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/predict", scenarioBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payload := decode(t, w)
	assert.Equal(t, "Static Land Source", payload["label"])
	assert.InDelta(t, 0.75, payload["confidence"].(float64), 1e-9)
	assert.Equal(t, []interface{}{}, payload["warnings"])

	chart := payload["chart"].(map[string]interface{})
	assert.Len(t, chart["labels"], 5)
	assert.InDelta(t, 0.32, chart["values"].([]interface{})[0].(float64), 1e-9)
}

func TestHandlePredictWarningsAndNoConfidence(t *testing.T) {
	ts := newTestServer(t, &fakeModel{label: 1}, nil)
	id := ts.newSession(t)

	body := `{"brightness":500,"bright_t31":300,"frp":20,"scan":1,"track":1,"confidence":"HIGH"}`
	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/predict", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payload := decode(t, w)
	assert.Equal(t, "Unknown Fire Type", payload["label"])
	_, hasConfidence := payload["confidence"]
	assert.False(t, hasConfidence)
	warnings := payload["warnings"].([]interface{})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "Brightness")
}

func TestHandlePredictBadRequests(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)
	id := ts.newSession(t)
	path := "/api/sessions/" + id + "/predict"

	cases := map[string]struct {
		body string
		code string
	}{
		"malformed":     {`{"brightness":`, "invalid_json"},
		"unknown field": {`{"brightness":1,"bright_t31":1,"frp":1,"scan":1,"track":1,"confidence":"low","x":1}`, "invalid_json"},
		"missing field": {`{"brightness":1,"bright_t31":1,"frp":1,"scan":1,"confidence":"low"}`, "validation_failed"},
		"bad level":     {`{"brightness":1,"bright_t31":1,"frp":1,"scan":1,"track":1,"confidence":"certain"}`, "invalid_confidence"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.code, errorCode(t, w))
		})
	}
}

func TestHandlePredictMissingFieldNamesJSONField(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)
	id := ts.newSession(t)

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/predict",
		`{"brightness":1,"frp":1,"scan":1,"track":1,"confidence":"low"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bright_t31 is required")
}

func TestHandlePredictScalingError(t *testing.T) {
	model := &fakeModel{transformErr: errors.New("X has 6 features, but StandardScaler is expecting 5 features as input")}
	ts := newTestServer(t, model, nil)
	id := ts.newSession(t)

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/predict", scenarioBody)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "scaling_error", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "expecting 5 features")

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["entries"])
}

func TestHandlePredictPredictionError(t *testing.T) {
	ts := newTestServer(t, &fakeModel{predictErr: errors.New("corrupt tree")}, nil)
	id := ts.newSession(t)

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/predict", scenarioBody)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "prediction_error", errorCode(t, w))
	assert.Contains(t, w.Body.String(), "corrupt tree")
}

func TestHandlePredictUnknownSession(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)

	w := ts.do(t, http.MethodPost, "/api/sessions/nope/predict", scenarioBody)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session_not_found", errorCode(t, w))
}

func TestHistoryHandler(t *testing.T) {
	ts := newTestServer(t, &fakeModel{label: 0, proba: []float64{0.875, 0.125}}, nil)
	id := ts.newSession(t)

	for i := 0; i < 12; i++ {
		w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/predict", scenarioBody)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, pipeline.MaxHistory)
	assert.Equal(t, "Vegetation Fire", resp.Entries[0].Result)
	require.Len(t, resp.Summary, pipeline.MaxHistory)
	assert.Equal(t, "Quest 1: Vegetation Fire (Confidence: 87.50%)", resp.Summary[0])
}

func TestEndSession(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)
	id := ts.newSession(t)

	w := ts.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/history", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictionsHandler(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)
	w := ts.do(t, http.MethodGet, "/api/predictions", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "audit_disabled", errorCode(t, w))

	audit := &fakeAudit{records: []db.PredictionRecord{{SessionID: "a", Label: "Offshore Fire", Code: 3}}}
	ts = newTestServer(t, &fakeModel{}, audit)

	w = ts.do(t, http.MethodGet, "/api/predictions?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, audit.limit)
	assert.Contains(t, w.Body.String(), "Offshore Fire")

	w = ts.do(t, http.MethodGet, "/api/predictions?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebSocketDisabled(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)
	id := ts.newSession(t)

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/ws", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandler(t *testing.T) {
	ts := newTestServer(t, &fakeModel{}, nil)
	w := ts.do(t, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "metrics_disabled", errorCode(t, w))

	model := &fakeModel{label: 2, proba: []float64{0.1, 0.9}}
	collector := monitoring.NewMetricsCollector()
	predictions := monitoring.NewPredictionMetrics(collector)
	sessions := session.NewManager(session.DefaultConfig(), nil)
	ts.handler = NewRouter(DefaultServerConfig(), Deps{
		Pipeline: pipeline.New(model, nil, predictions).WithObserver(predictions),
		Sessions: sessions,
		Model:    model,
		Metrics:  collector,
	})
	ts.sessions = sessions
	id := ts.newSession(t)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/predict",
		`{"brightness":500,"bright_t31":300,"frp":20,"scan":1,"track":1,"confidence":"low"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	body := w.Body.String()
	assert.Contains(t, body, `fire_predictions_total{label="Static Land Source",scored="true"} 1`)
	assert.Contains(t, body, `fire_advisory_warnings_total{rule="brightness_range"} 1`)
	assert.Contains(t, body, `fire_pipeline_runs_total{outcome="recorded",stage="recorded"} 1`)

	w = ts.do(t, http.MethodGet, "/api/metrics?format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	payload := decode(t, w)
	assert.NotEmpty(t, payload["metrics"])
	assert.NotEmpty(t, payload["system"])
}
