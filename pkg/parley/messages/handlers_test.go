package messages

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/models"
	"gorm.io/gorm"
)

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(NewService(db, nil, nil))
	handler.RegisterRoutes(r.Group("/direct-messages", auth.AuthMiddleware()))
	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.UUID, user.Email)
	return "Bearer " + token
}

func TestSendHandlerRejectsBothTargets(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")

	body, _ := json.Marshal(map[string]string{
		"receiver_uuid": b.UUID,
		"group_uuid":    "some-group",
		"content":       "hello",
	})
	req, _ := http.NewRequest("POST", "/direct-messages", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(a))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
	if countMessages(db) != 0 {
		t.Error("Expected nothing to be persisted")
	}
}

func TestSendAndListHandlers(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")

	body, _ := json.Marshal(SendRequest{ReceiverUUID: b.UUID, Content: "hello"})
	req, _ := http.NewRequest("POST", "/direct-messages", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(a))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	req, _ = http.NewRequest("GET", "/direct-messages/"+a.UUID+"?page=1&limit=10", nil)
	req.Header.Set("Authorization", getAuthHeader(b))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Success bool         `json:"success"`
		Data    PageResponse `json:"data"`
	}
	json.Unmarshal(resp.Body.Bytes(), &envelope)
	if !envelope.Success || envelope.Data.Total != 1 || envelope.Data.HasMore {
		t.Errorf("Unexpected page: %s", resp.Body.String())
	}
	if envelope.Data.Page != 1 || envelope.Data.Limit != 10 {
		t.Errorf("Expected page 1 limit 10, got %d/%d", envelope.Data.Page, envelope.Data.Limit)
	}
}

func TestDeleteHandlerForbidsNonSender(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")

	svc := NewService(db, nil, nil)
	sent, _ := svc.Send(t.Context(), SendInput{SenderID: a.ID, ReceiverUUID: b.UUID, Content: "hello"})

	req, _ := http.NewRequest("DELETE", "/direct-messages/message/"+sent.UUID, nil)
	req.Header.Set("Authorization", getAuthHeader(b))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	req, _ = http.NewRequest("DELETE", "/direct-messages/message/"+sent.UUID, nil)
	req.Header.Set("Authorization", getAuthHeader(a))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
}

func TestSendHandlerRejectsNonTextType(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")

	for _, messageType := range []string{"image", "file", "video"} {
		t.Run(messageType, func(t *testing.T) {
			body, _ := json.Marshal(SendRequest{ReceiverUUID: b.UUID, Content: "photo.png", MessageType: messageType})
			req, _ := http.NewRequest("POST", "/direct-messages", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", getAuthHeader(a))
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
			}
		})
	}
	if countMessages(db) != 0 {
		t.Error("Expected nothing to be persisted")
	}
}

func TestListHandlerRejectsHugePage(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	a := createTestUser(t, db, "alice")
	b := createTestUser(t, db, "bob")

	for _, page := range []string{"100001", "4611686018427387904"} {
		req, _ := http.NewRequest("GET", "/direct-messages/"+b.UUID+"?page="+page+"&limit=100", nil)
		req.Header.Set("Authorization", getAuthHeader(a))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Errorf("page=%s: expected status 400, got %d", page, resp.Code)
		}
	}
}
