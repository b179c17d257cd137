package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceapi/internal/models"
	"github.com/your-org/faceapi/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev dto.WSEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)

	personID := uuid.New()
	imageID := uuid.New()
	hub.BroadcastEvent(models.IdentityEvent{
		Kind:      models.EventKindImage,
		Action:    models.EventCreated,
		ID:        imageID,
		PersonID:  &personID,
		Timestamp: time.Now().UTC(),
	})

	ev := readEvent(t, conn)
	assert.Equal(t, "image.created", ev.Type)
	assert.Equal(t, imageID, ev.Data.ID)
	require.NotNil(t, ev.Data.PersonID)
	assert.Equal(t, personID, *ev.Data.PersonID)
}

func TestHubFiltersByKind(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url+"?kinds=group", 1)

	require.NoError(t, hub.PublishIdentityEvent(context.Background(), models.IdentityEvent{
		Kind: models.EventKindPerson, Action: models.EventCreated, ID: uuid.New(),
	}))
	groupID := uuid.New()
	require.NoError(t, hub.PublishIdentityEvent(context.Background(), models.IdentityEvent{
		Kind: models.EventKindGroup, Action: models.EventDeleted, ID: groupID,
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, "group.deleted", ev.Type)
	assert.Equal(t, groupID, ev.Data.ID)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
