package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firequest/pipeline"
)

func TestHubDeliversToSessionClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("session"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session=a"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conf := 0.66
	require.NoError(t, hub.RecordPrediction(ctx, pipeline.Record{
		SessionID: "b",
		Result:    pipeline.Result{Label: "Offshore Fire"},
	}))
	require.NoError(t, hub.RecordPrediction(ctx, pipeline.Record{
		SessionID: "a",
		Result:    pipeline.Result{Label: "Vegetation Fire", Confidence: &conf},
		At:        time.Now(),
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, PredictionRecorded, msg.Type)

	var data PredictionMessage
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "Vegetation Fire", data.Label)
	require.NotNil(t, data.Confidence)
	assert.InDelta(t, 0.66, *data.Confidence, 1e-9)
}

func TestHubStopsOnCancel(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
}
