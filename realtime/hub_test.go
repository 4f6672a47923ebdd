package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/camden-git/framesys/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(hub.Handler(Upgrader(nil)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.PipelineStatus(models.PipelineStatus{Stage: models.StageSampling, SamplingProgress: 40})
	hub.FrameChanged(&models.Frame{ID: "f1", ProjectID: "p1", ImageData: []byte{1, 2, 3}, IsKeeper: true})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var status Event
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, EventPipelineStatus, status.Type)
	require.NotNil(t, status.Status)
	assert.Equal(t, models.StageSampling, status.Status.Stage)
	assert.NotZero(t, status.Timestamp)

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, EventFrameUpdated, frame["type"])
	payload := frame["frame"].(map[string]any)
	assert.Equal(t, "f1", payload["id"])
	assert.NotContains(t, payload, "imageData")
}

func TestUpgraderOrigins(t *testing.T) {
	up := Upgrader([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, up.CheckOrigin(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, up.CheckOrigin(req))

	assert.True(t, Upgrader([]string{"*"}).CheckOrigin(req))
}
