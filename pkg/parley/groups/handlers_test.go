package groups

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/messages"
	"github.com/parleychat/parley/pkg/parley/models"
	"gorm.io/gorm"
)

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(NewManager(db, 5*time.Second), messages.NewService(db, nil, nil))

	groups := r.Group("/groups")
	groups.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(groups)
	handler.RegisterMemberRoutes(groups)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.UUID, user.Email)
	return "Bearer " + token
}

func doJSON(router *gin.Engine, method, path string, user models.User, body interface{}) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

type detailEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    Detail `json:"data"`
}

func TestCreateGroupHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "creator")
	member := createTestUser(t, db, "member")

	resp := doJSON(router, "POST", "/groups", user, CreateGroupRequest{
		Name:    "Test Group",
		Members: []MemberInput{{UserUUID: member.UUID}},
	})

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope detailEnvelope
	json.Unmarshal(resp.Body.Bytes(), &envelope)

	if envelope.Data.Name != "Test Group" {
		t.Errorf("Expected name 'Test Group', got %s", envelope.Data.Name)
	}
	if envelope.Data.MemberCount != 2 {
		t.Errorf("Expected 2 members, got %d", envelope.Data.MemberCount)
	}
}

func TestCreateGroupHandlerValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "creator")

	resp := doJSON(router, "POST", "/groups", user, map[string]interface{}{
		"name":    "Team",
		"members": []map[string]string{{"user_uuid": "x", "role": "owner"}},
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown role, got %d", resp.Code)
	}
}

func TestListGroupsHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, _, u1, _ := teamFixture(t, db)

	resp := doJSON(router, "GET", "/groups", u1, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data []Summary `json:"data"`
	}
	json.Unmarshal(resp.Body.Bytes(), &envelope)

	if len(envelope.Data) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(envelope.Data))
	}
	if envelope.Data[0].UUID != detail.UUID || envelope.Data[0].Role != models.GroupRoleMember {
		t.Errorf("Unexpected summary: %+v", envelope.Data[0])
	}
}

func TestGetGroupHandlerIncludesMessages(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, c, u1, _ := teamFixture(t, db)

	svc := messages.NewService(db, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := svc.Send(t.Context(), messages.SendInput{SenderID: c.ID, GroupUUID: detail.UUID, Content: "hi"}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	resp := doJSON(router, "GET", "/groups/"+detail.UUID+"?limit=2&page=1", u1, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			Group    Detail                 `json:"group"`
			Messages []messages.MessageView `json:"messages"`
			Total    int64                  `json:"total"`
			HasMore  bool                   `json:"hasMore"`
		} `json:"data"`
	}
	json.Unmarshal(resp.Body.Bytes(), &envelope)

	if envelope.Data.Group.UUID != detail.UUID {
		t.Errorf("Expected group %s, got %s", detail.UUID, envelope.Data.Group.UUID)
	}
	if len(envelope.Data.Messages) != 2 || envelope.Data.Total != 3 || !envelope.Data.HasMore {
		t.Errorf("Unexpected page: %s", resp.Body.String())
	}
}

func TestGetGroupHandlerHiddenFromOutsiders(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, _, _, _ := teamFixture(t, db)
	outsider := createTestUser(t, db, "outsider")

	resp := doJSON(router, "GET", "/groups/"+detail.UUID, outsider, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestUpdateGroupHandlerLastAdmin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, c, _, _ := teamFixture(t, db)

	resp := doJSON(router, "PUT", "/groups/"+detail.UUID, c, UpdateGroupRequest{RemoveMembers: []string{c.UUID}})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateGroupHandlerAppliesBatch(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, c, u1, u2 := teamFixture(t, db)

	resp := doJSON(router, "PUT", "/groups/"+detail.UUID, c, map[string]interface{}{
		"name":          "Core",
		"removeMembers": []string{u2.UUID},
		"roleUpdates":   []map[string]string{{"user_uuid": u1.UUID, "role": "admin"}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope detailEnvelope
	json.Unmarshal(resp.Body.Bytes(), &envelope)
	if envelope.Data.Name != "Core" || envelope.Data.MemberCount != 2 {
		t.Errorf("Expected Core with 2 members, got %s with %d", envelope.Data.Name, envelope.Data.MemberCount)
	}
	if roleOf(&envelope.Data, u1.UUID) != models.GroupRoleAdmin {
		t.Error("Expected u1 to be promoted")
	}
}

func TestUpdateGroupHandlerRejectsEmptyBody(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, c, _, u2 := teamFixture(t, db)

	for name, body := range map[string]interface{}{
		"empty object":      map[string]interface{}{},
		"snake case fields": map[string]interface{}{"remove_members": []string{u2.UUID}},
	} {
		t.Run(name, func(t *testing.T) {
			resp := doJSON(router, "PUT", "/groups/"+detail.UUID, c, body)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.Code)
			}
		})
	}

	var count int64
	db.Model(&models.GroupMembership{}).Where("active = ?", true).Count(&count)
	if count != 3 {
		t.Errorf("Expected 3 active memberships, got %d", count)
	}
}

func TestUpdateGroupHandlerNonAdmin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, _, u1, _ := teamFixture(t, db)

	name := "Hijacked"
	resp := doJSON(router, "PUT", "/groups/"+detail.UUID, u1, UpdateGroupRequest{Name: &name})
	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

func TestMemberRoutes(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, c, u1, u2 := teamFixture(t, db)
	u3 := createTestUser(t, db, "u3")

	resp := doJSON(router, "POST", "/groups/"+detail.UUID+"/members", c, AddMembersRequest{
		Members: []MemberInput{{UserUUID: u3.UUID}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200 adding member, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "PUT", "/groups/"+detail.UUID+"/members/"+u1.UUID, c, UpdateMemberRequest{Role: "admin"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200 promoting member, got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope detailEnvelope
	json.Unmarshal(resp.Body.Bytes(), &envelope)
	if roleOf(&envelope.Data, u1.UUID) != models.GroupRoleAdmin {
		t.Error("Expected U1 to be promoted")
	}

	resp = doJSON(router, "DELETE", "/groups/"+detail.UUID+"/members/"+u2.UUID, u1, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200 removing member, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "GET", "/groups/"+detail.UUID+"/members", c, nil)
	var list struct {
		Data MemberList `json:"data"`
	}
	json.Unmarshal(resp.Body.Bytes(), &list)
	if list.Data.Count != 3 {
		t.Errorf("Expected 3 members, got %d", list.Data.Count)
	}

	resp = doJSON(router, "PUT", "/groups/"+detail.UUID+"/members/"+u2.UUID, c, UpdateMemberRequest{Role: "admin"})
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for a removed member, got %d", resp.Code)
	}
}

func TestDeleteGroupHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	_, detail, c, _, _ := teamFixture(t, db)

	resp := doJSON(router, "DELETE", "/groups/"+detail.UUID, c, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "GET", "/groups/"+detail.UUID, c, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", resp.Code)
	}
}
