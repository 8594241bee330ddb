package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwash-ops-server/config"
	"carwash-ops-server/database"
	"carwash-ops-server/models"
	"carwash-ops-server/services"
	ws "carwash-ops-server/websocket"
)

type apiFixture struct {
	router      *gin.Engine
	store       *database.MemoryStore
	hub         *ws.Hub
	adminToken  string
	workerToken string
	otherToken  string
	worker      *models.Worker
	other       *models.Worker
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		JWT:    config.JWTConfig{Secret: "routes-secret", ExpiryHours: 1},
	}
	store := database.NewMemoryStore()

	hub := ws.NewHub()
	go hub.Run(ctx)
	tracker := services.NewLocationTracker(store, store)
	go tracker.Run(ctx)

	identity := services.NewIdentityService(store, cfg.JWT)
	alerts := services.NewAlertService(store, hub)
	provisioning := services.NewWorkerProvisioningService(identity, store, alerts, nil, "test@123")

	f := &apiFixture{store: store, hub: hub}
	f.router = NewRouter(Dependencies{
		Config:       cfg,
		Identity:     identity,
		Coordinator:  services.NewAssignmentCoordinator(store, store, hub),
		Provisioning: provisioning,
		Dashboard:    services.NewDashboardService(store, time.UTC),
		Tracker:      tracker,
		Alerts:       alerts,
		Hub:          hub,
	})

	_, err := identity.CreatePrincipal(ctx, "admin@wash.test", "admin-pass", models.RoleMetadata{Role: models.RoleAdmin, Name: "Ops"})
	require.NoError(t, err)

	res, err := provisioning.ProvisionWorker(ctx, models.ProvisionWorkerRequest{Name: "Walid", Email: "walid@wash.test"})
	require.NoError(t, err)
	f.worker = res.Worker
	res, err = provisioning.ProvisionWorker(ctx, models.ProvisionWorkerRequest{Name: "Nour", Email: "nour@wash.test"})
	require.NoError(t, err)
	f.other = res.Worker

	login := func(email, password string) string {
		result, err := identity.Authenticate(ctx, email, password)
		require.NoError(t, err)
		return result.Token
	}
	f.adminToken = login("admin@wash.test", "admin-pass")
	f.workerToken = login("walid@wash.test", "test@123")
	f.otherToken = login("nour@wash.test", "test@123")
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func (f *apiFixture) seedOrder(status models.OrderStatus) models.Order {
	customer := f.store.SeedUser(models.User{FullName: "Hedi"})
	return f.store.SeedOrder(models.Order{CustomerID: customer.ID, Status: status, TotalAmount: 35})
}

func dataField(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return data
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	w, body := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"admin@wash.test","password":"admin-pass"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, dataField(t, body)["token"])

	w, body = f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"admin@wash.test","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", body["kind"])

	w, _ = f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentPrincipal(t *testing.T) {
	f := newAPIFixture(t)
	w, body := f.do(t, http.MethodGet, "/api/v1/auth/me", f.workerToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "worker", dataField(t, body)["role"])
	assert.NotContains(t, w.Body.String(), "password")
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)

	w, _ := f.do(t, http.MethodGet, "/api/v1/admin/orders", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodGet, "/api/v1/admin/orders", f.workerToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/v1/worker/location", f.adminToken, `{"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOrderLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	order := f.seedOrder(models.OrderStatusBooked)
	base := "/api/v1/admin/orders/" + order.ID

	w, body := f.do(t, http.MethodPost, base+"/accept", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := dataField(t, body)
	assert.Equal(t, "Confirmed", result["order"].(map[string]interface{})["status"])

	w, body = f.do(t, http.MethodPost, base+"/accept", f.adminToken, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", body["kind"])
	assert.Equal(t, "Confirmed", body["status"])
	assert.Equal(t, "accept", body["trigger"])

	w, body = f.do(t, http.MethodPost, base+"/assign", f.adminToken, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "worker_required", body["kind"])

	w, body = f.do(t, http.MethodPost, base+"/assign", f.adminToken, `{"worker_id":"`+models.NewID()+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "worker_not_found", body["kind"])

	w, _ = f.do(t, http.MethodPost, base+"/assign", f.adminToken, `{"worker_id":"`+f.worker.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, body = f.do(t, http.MethodGet, base, f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := dataField(t, body)
	effective := detail["effective_assignment"].(map[string]interface{})
	assert.Equal(t, f.worker.ID, effective["worker_id"])

	// Another worker may not move this order
	w, _ = f.do(t, http.MethodPost, "/api/v1/worker/orders/"+order.ID+"/status", f.otherToken, `{"trigger":"arrive"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Workers may not cancel
	w, _ = f.do(t, http.MethodPost, "/api/v1/worker/orders/"+order.ID+"/status", f.workerToken, `{"trigger":"cancel"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, trigger := range []string{"arrive", "start", "complete"} {
		w, _ = f.do(t, http.MethodPost, "/api/v1/worker/orders/"+order.ID+"/status", f.workerToken, `{"trigger":"`+trigger+`"}`)
		require.Equal(t, http.StatusOK, w.Code, "%s: %s", trigger, w.Body.String())
	}

	w, body = f.do(t, http.MethodPost, base+"/cancel", f.adminToken, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Completed", body["status"])
}

func TestReassignOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	order := f.seedOrder(models.OrderStatusConfirmed)
	base := "/api/v1/admin/orders/" + order.ID

	w, _ := f.do(t, http.MethodPost, base+"/assign", f.adminToken, `{"worker_id":"`+f.worker.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := f.do(t, http.MethodPost, base+"/assign", f.adminToken, `{"worker_id":"`+f.worker.ID+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_assigned", body["kind"])

	w, body = f.do(t, http.MethodPost, base+"/assign", f.adminToken, `{"worker_id":"`+f.other.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reassign", dataField(t, body)["trigger"])

	w, _ = f.do(t, http.MethodPatch, "/api/v1/admin/workers/"+f.worker.ID+"/status", f.adminToken, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodPost, base+"/assign", f.adminToken, `{"worker_id":"`+f.worker.ID+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "worker_inactive", body["kind"])
}

func TestAdvanceStatusValidation(t *testing.T) {
	f := newAPIFixture(t)
	order := f.seedOrder(models.OrderStatusBooked)
	base := "/api/v1/admin/orders/" + order.ID

	w, body := f.do(t, http.MethodPost, base+"/status", f.adminToken, `{"trigger":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_trigger", body["kind"])

	w, body = f.do(t, http.MethodPost, base+"/status", f.adminToken, `{"trigger":"assign"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_trigger", body["kind"])

	w, _ = f.do(t, http.MethodPost, base+"/decline", f.adminToken, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodPost, "/api/v1/admin/orders/"+models.NewID()+"/accept", f.adminToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order_not_found", body["kind"])
}

func TestListOrders(t *testing.T) {
	f := newAPIFixture(t)
	f.seedOrder(models.OrderStatusBooked)
	f.seedOrder(models.OrderStatusCompleted)

	w, body := f.do(t, http.MethodGet, "/api/v1/admin/orders?status=Booked", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]interface{})["total"])

	w, body = f.do(t, http.MethodGet, "/api/v1/admin/orders?status=Lost", f.adminToken, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status", body["kind"])
}

func TestProvisionWorkerOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/admin/workers", f.adminToken, `{"name":"Salma","email":"salma@wash.test"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "provisioned", body["outcome"])

	w, body = f.do(t, http.MethodPost, "/api/v1/admin/workers", f.adminToken, `{"name":"Salma","email":"salma@wash.test"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "identity_failed", body["outcome"])

	w, body = f.do(t, http.MethodPost, "/api/v1/admin/workers", f.adminToken, `{"name":"","email":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_worker_input", body["kind"])
	assert.Equal(t, "invalid_input", body["outcome"])

	w, body = f.do(t, http.MethodGet, "/api/v1/admin/workers", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["total"])
}

func TestUploadDocumentWithoutUploader(t *testing.T) {
	f := newAPIFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("document", "id.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/workers/"+f.worker.ID+"/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
}

func TestValidateDocumentFile(t *testing.T) {
	assert.True(t, validateDocumentFile(&multipart.FileHeader{Filename: "id.PDF", Size: 10}))
	assert.False(t, validateDocumentFile(&multipart.FileHeader{Filename: "id.exe", Size: 10}))
	assert.False(t, validateDocumentFile(&multipart.FileHeader{Filename: "id.png", Size: maxDocumentSize + 1}))
	assert.False(t, validateDocumentFile(nil))
}

func TestDashboardAndAlerts(t *testing.T) {
	f := newAPIFixture(t)
	f.seedOrder(models.OrderStatusBooked)

	w, body := f.do(t, http.MethodGet, "/api/v1/admin/dashboard", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := dataField(t, body)
	assert.EqualValues(t, 1, summary["pending_orders"])
	assert.Len(t, summary["revenue_series"], 7)

	alert := &models.OperatorAlert{Kind: models.AlertOrphanedIdentity, SubjectID: "p", Message: "orphan"}
	require.NoError(t, f.store.InsertAlert(context.Background(), alert))

	w, body = f.do(t, http.MethodGet, "/api/v1/admin/alerts?unresolved=true", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, _ = f.do(t, http.MethodPost, "/api/v1/admin/alerts/"+alert.ID+"/resolve", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodGet, "/api/v1/admin/alerts?unresolved=true", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["total"])

	w, body = f.do(t, http.MethodPost, "/api/v1/admin/alerts/"+models.NewID()+"/resolve", f.adminToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "alert_not_found", body["kind"])
}

func TestReportLocation(t *testing.T) {
	f := newAPIFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/worker/location", f.workerToken, `{"latitude":95,"longitude":10}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_location", body["kind"])

	w, body = f.do(t, http.MethodPost, "/api/v1/worker/location", f.workerToken, `{"latitude":36.8}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_location", body["kind"])

	w, _ = f.do(t, http.MethodPost, "/api/v1/worker/location", f.workerToken, `{"latitude":0,"longitude":0}`)
	require.Equal(t, http.StatusOK, w.Code, "zero coordinates are a valid position")

	w, body = f.do(t, http.MethodGet, "/api/v1/admin/workers/"+f.worker.ID, f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, dataField(t, body)["latitude"])
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestTrackingStream(t *testing.T) {
	f := newAPIFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	_, resp, err := gws.DefaultDialer.Dial(wsURL(server, "/api/v1/ws/workers/"+f.worker.ID+"/track?token="+f.workerToken), nil)
	require.Error(t, err, "workers may not track")
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	_, resp, err = gws.DefaultDialer.Dial(wsURL(server, "/api/v1/ws/workers/"+models.NewID()+"/track?token="+f.adminToken), nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}

	conn, _, err := gws.DefaultDialer.Dial(wsURL(server, "/api/v1/ws/workers/"+f.worker.ID+"/track?token="+f.adminToken), nil)
	require.NoError(t, err)

	var frame ws.PositionFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, ws.MessageNoLocation, frame.Type)
	assert.True(t, f.store.IsListening(f.worker.ID))

	w, _ := f.do(t, http.MethodPost, "/api/v1/worker/location", f.workerToken, `{"latitude":36.8,"longitude":10.18}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, ws.MessagePosition, frame.Type)
	require.NotNil(t, frame.Position)
	assert.Equal(t, 36.8, frame.Position.Latitude)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !f.store.IsListening(f.worker.ID) }, 2*time.Second, 10*time.Millisecond,
		"closing the socket releases the listen")
}

func TestTrackingStreamSendsStoredPositionFirst(t *testing.T) {
	f := newAPIFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	w, _ := f.do(t, http.MethodPost, "/api/v1/worker/location", f.workerToken, `{"latitude":35.0,"longitude":9.5}`)
	require.Equal(t, http.StatusOK, w.Code)

	conn, _, err := gws.DefaultDialer.Dial(wsURL(server, "/api/v1/ws/workers/"+f.worker.ID+"/track?token="+f.adminToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame ws.PositionFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, ws.MessagePosition, frame.Type)
	assert.False(t, frame.Stale)
	require.NotNil(t, frame.Position)
	assert.Equal(t, 35.0, frame.Position.Latitude)
}

func TestAdminStreamReceivesStatusChanges(t *testing.T) {
	f := newAPIFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	conn, _, err := gws.DefaultDialer.Dial(wsURL(server, "/api/v1/ws/admin?token="+f.adminToken), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	order := f.seedOrder(models.OrderStatusBooked)
	w, _ := f.do(t, http.MethodPost, "/api/v1/admin/orders/"+order.ID+"/accept", f.adminToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	var msg struct {
		Type string                  `json:"type"`
		Data models.OrderStatusEvent `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.MessageOrderStatus, msg.Type)
	assert.Equal(t, order.ID, msg.Data.OrderID)
	assert.Equal(t, models.OrderStatusConfirmed, msg.Data.To)
	assert.NotEmpty(t, msg.Data.ActorID)
}
