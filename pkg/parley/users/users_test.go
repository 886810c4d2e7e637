package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/parleychat/parley/pkg/parley/apperr"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

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

func createTestUser(t *testing.T, db *gorm.DB, name, email string) models.User {
	user := models.User{Name: name, Email: email, PasswordHash: "hash"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(NewDirectory(db))
	handler.RegisterRoutes(r.Group("/users", auth.AuthMiddleware()))
	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.UUID, user.Email)
	return "Bearer " + token
}

func TestListUsersExcludesCaller(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	createTestUser(t, db, "Bob", "bob@example.com")
	createTestUser(t, db, "Carol", "carol@example.com")

	req, _ := http.NewRequest("GET", "/users", nil)
	req.Header.Set("Authorization", getAuthHeader(alice))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data []models.UserSummary `json:"data"`
	}
	json.Unmarshal(resp.Body.Bytes(), &envelope)

	if len(envelope.Data) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(envelope.Data))
	}
	for _, u := range envelope.Data {
		if u.UUID == alice.UUID {
			t.Error("Expected caller to be excluded from the listing")
		}
	}
	if envelope.Data[0].Name != "Bob" {
		t.Errorf("Expected users ordered by name, got %s first", envelope.Data[0].Name)
	}
}

func TestListUsersRequiresAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	req, _ := http.NewRequest("GET", "/users", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestDirectoryLookups(t *testing.T) {
	db := setupTestDB(t)
	dir := NewDirectory(db)
	alice := createTestUser(t, db, "Alice", "alice@example.com")
	ctx := context.Background()

	if u, err := dir.ByUUID(ctx, alice.UUID); err != nil || u.ID != alice.ID {
		t.Errorf("Expected ByUUID to find alice, got %v, %v", u, err)
	}
	if u, err := dir.ByEmail(ctx, "alice@example.com"); err != nil || u.ID != alice.ID {
		t.Errorf("Expected ByEmail to find alice, got %v, %v", u, err)
	}
	if _, err := dir.ByUUID(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not-found for unknown uuid, got %v", err)
	}
	if _, err := dir.ByID(ctx, 999); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("Expected not-found for unknown id, got %v", err)
	}
}

func TestFindByUUIDsSkipsUnknown(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestUser(t, db, "Alice", "alice@example.com")

	found, err := FindByUUIDs(db, []string{alice.UUID, "missing"})
	if err != nil {
		t.Fatalf("FindByUUIDs failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(found))
	}
	if found[alice.UUID].Email != "alice@example.com" {
		t.Errorf("Expected alice in result, got %+v", found)
	}
}
