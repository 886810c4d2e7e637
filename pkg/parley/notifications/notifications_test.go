package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingPusher struct {
	mu     sync.Mutex
	tokens []string
	err    error
}

func (p *recordingPusher) Push(ctx context.Context, token string, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, token)
	return p.err
}

func (p *recordingPusher) pushed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, token *string) models.User {
	user := models.User{Name: "Test User", Email: email, PasswordHash: "hash", FCMToken: token}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func strPtr(s string) *string { return &s }

func TestSendWithoutTokenReturnsFalse(t *testing.T) {
	db := setupTestDB(t)
	pusher := &recordingPusher{}
	d := NewDispatcher(db, pusher, time.Second)
	user := createTestUser(t, db, "a@example.com", nil)

	if d.Send(context.Background(), user.ID, Notification{Title: "hi"}) {
		t.Error("Expected false for a user without a push token")
	}
	if len(pusher.pushed()) != 0 {
		t.Error("Expected no push for a user without a token")
	}
}

func TestSendDeliversToToken(t *testing.T) {
	db := setupTestDB(t)
	pusher := &recordingPusher{}
	d := NewDispatcher(db, pusher, time.Second)
	user := createTestUser(t, db, "a@example.com", strPtr("device-1"))

	if !d.Send(context.Background(), user.ID, Notification{Title: "hi"}) {
		t.Error("Expected true for a user with a push token")
	}
	if got := pusher.pushed(); len(got) != 1 || got[0] != "device-1" {
		t.Errorf("Expected push to device-1, got %v", got)
	}
}

func TestSendPusherFailureReturnsFalse(t *testing.T) {
	db := setupTestDB(t)
	d := NewDispatcher(db, &recordingPusher{err: errors.New("unavailable")}, time.Second)
	user := createTestUser(t, db, "a@example.com", strPtr("device-1"))

	if d.Send(context.Background(), user.ID, Notification{Title: "hi"}) {
		t.Error("Expected false when the pusher fails")
	}
}

func TestSendWithoutPusherReturnsFalse(t *testing.T) {
	db := setupTestDB(t)
	d := NewDispatcher(db, nil, time.Second)
	user := createTestUser(t, db, "a@example.com", strPtr("device-1"))

	if d.Send(context.Background(), user.ID, Notification{Title: "hi"}) {
		t.Error("Expected false with push disabled")
	}
}

func TestDispatchAsyncFansOut(t *testing.T) {
	db := setupTestDB(t)
	pusher := &recordingPusher{}
	d := NewDispatcher(db, pusher, time.Second)
	a := createTestUser(t, db, "a@example.com", strPtr("device-a"))
	b := createTestUser(t, db, "b@example.com", strPtr("device-b"))
	c := createTestUser(t, db, "c@example.com", nil)

	d.DispatchAsync([]uint{a.ID, b.ID, c.ID}, Notification{Title: "hi"})
	d.Wait()

	if got := pusher.pushed(); len(got) != 2 {
		t.Errorf("Expected 2 pushes, got %v", got)
	}
}

func TestRegisterAndClearToken(t *testing.T) {
	db := setupTestDB(t)
	d := NewDispatcher(db, nil, time.Second)
	user := createTestUser(t, db, "a@example.com", nil)

	if err := d.RegisterToken(context.Background(), user.ID, " device-1 "); err != nil {
		t.Fatalf("RegisterToken failed: %v", err)
	}
	var loaded models.User
	db.First(&loaded, user.ID)
	if !loaded.HasPushToken() || *loaded.FCMToken != "device-1" {
		t.Errorf("Expected token device-1, got %v", loaded.FCMToken)
	}

	if err := d.ClearToken(context.Background(), user.ID); err != nil {
		t.Fatalf("ClearToken failed: %v", err)
	}
	var cleared models.User
	db.First(&cleared, user.ID)
	if cleared.HasPushToken() {
		t.Error("Expected token to be cleared")
	}
}

func TestFCMPusherPostsMessage(t *testing.T) {
	var received fcmRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name":"projects/p/messages/1"}`))
	}))
	defer server.Close()

	pusher := NewFCMPusherWithClient(server.Client(), server.URL)
	err := pusher.Push(context.Background(), "device-1", Notification{Title: "New message", Body: "hi", Data: map[string]string{"type": "message"}})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if received.Message.Token != "device-1" || received.Message.Notification.Title != "New message" {
		t.Errorf("Unexpected payload: %+v", received)
	}
	if received.Message.Data["type"] != "message" {
		t.Errorf("Expected data to be forwarded, got %v", received.Message.Data)
	}
}

func TestFCMPusherReportsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"status":"UNREGISTERED"}}`))
	}))
	defer server.Close()

	pusher := NewFCMPusherWithClient(server.Client(), server.URL)
	if err := pusher.Push(context.Background(), "stale", Notification{Title: "x"}); err == nil {
		t.Error("Expected error for a non-2xx response")
	}
}

func setupTestRouter(d *Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(d).RegisterRoutes(r.Group("/notifications", auth.AuthMiddleware()))
	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.UUID, user.Email)
	return "Bearer " + token
}

func TestHandlersRegisterTokenAndTest(t *testing.T) {
	db := setupTestDB(t)
	pusher := &recordingPusher{}
	router := setupTestRouter(NewDispatcher(db, pusher, time.Second))
	user := createTestUser(t, db, "a@example.com", nil)

	body, _ := json.Marshal(TokenRequest{FCMToken: "device-1"})
	req, _ := http.NewRequest("POST", "/notifications/token", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	body, _ = json.Marshal(TestRequest{Title: "Ping", Body: "hello"})
	req, _ = http.NewRequest("POST", "/notifications/test", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var envelope struct {
		Data TestResponse `json:"data"`
	}
	json.Unmarshal(resp.Body.Bytes(), &envelope)
	if !envelope.Data.Sent {
		t.Errorf("Expected sent=true, got %s", resp.Body.String())
	}
}

func TestHandlersRejectBlankToken(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(NewDispatcher(db, nil, time.Second))
	user := createTestUser(t, db, "a@example.com", nil)

	req, _ := http.NewRequest("POST", "/notifications/token", bytes.NewBufferString(`{"fcm_token":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}
