package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "tally/internal/errors"
	"tally/internal/logger"
	"tally/internal/middleware"
	"tally/internal/models"
	"tally/internal/services"
	"tally/internal/validator"
)

const (
	testUserID  = "0190f0a4-6b5e-7c3d-8e9f-0a1b2c3d4e5f"
	testOtherID = "0190f0a4-6b5e-7c3d-8e9f-aaaaaaaaaaaa"
)

// --- mock services ---

type mockUserService struct {
	createUserFn            func(in services.CreateUserInput) (*models.User, error)
	getUserByEmailFn        func(email string) (*models.User, error)
	getUserByIDFn           func(id string) (*models.User, error)
	verifyPasswordFn        func(user *models.User, password string) bool
	attemptLoginFn          func(email, password string) (*models.User, error)
	storeRefreshTokenHashFn func(userID, tokenHash string) error
	getRefreshTokenHashFn   func(userID string) (string, error)
	updateProfileFn         func(userID string, fields services.ProfileUpdateFields) (*models.User, error)
	deleteUserFn            func(userID string) error
}

var _ services.UserServicer = (*mockUserService)(nil)

func (m *mockUserService) CreateUser(in services.CreateUserInput) (*models.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(in)
	}
	return &models.User{Base: models.Base{ID: testUserID}, Email: in.Email}, nil
}

func (m *mockUserService) GetUserByEmail(email string) (*models.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(email)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByID(id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{Base: models.Base{ID: id}}, nil
}

func (m *mockUserService) VerifyPassword(user *models.User, password string) bool {
	if m.verifyPasswordFn != nil {
		return m.verifyPasswordFn(user, password)
	}
	return true
}

func (m *mockUserService) AttemptLogin(email, password string) (*models.User, error) {
	if m.attemptLoginFn != nil {
		return m.attemptLoginFn(email, password)
	}
	return &models.User{Base: models.Base{ID: testUserID}, Email: email}, nil
}

func (m *mockUserService) StoreRefreshTokenHash(userID, tokenHash string) error {
	if m.storeRefreshTokenHashFn != nil {
		return m.storeRefreshTokenHashFn(userID, tokenHash)
	}
	return nil
}

func (m *mockUserService) GetRefreshTokenHash(userID string) (string, error) {
	if m.getRefreshTokenHashFn != nil {
		return m.getRefreshTokenHashFn(userID)
	}
	return "", nil
}

func (m *mockUserService) UpdateProfile(userID string, fields services.ProfileUpdateFields) (*models.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(userID, fields)
	}
	return &models.User{Base: models.Base{ID: userID}}, nil
}

func (m *mockUserService) DeleteUser(userID string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(userID)
	}
	return nil
}

// mockAuditService records the actions it was asked to log.
type mockAuditService struct {
	actions []string
}

var _ services.AuditServicer = (*mockAuditService)(nil)

func (m *mockAuditService) Log(_, action, _, _, _ string, _ map[string]interface{}) {
	m.actions = append(m.actions, action)
}

func (m *mockAuditService) logged(action string) bool {
	for _, a := range m.actions {
		if a == action {
			return true
		}
	}
	return false
}

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	r := gin.New()
	r.POST("/auth/register", handler.Register)
	r.POST("/auth/login", handler.Login)
	r.POST("/auth/token/refresh", handler.Refresh)
	r.GET("/profile", injectUserID(testUserID), handler.GetProfile)
	r.PUT("/profile", injectUserID(testUserID), handler.UpdateProfile)
	return r
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

func assertTokens(t *testing.T, tokens map[string]interface{}) {
	t.Helper()
	if tokens["access"] == nil || tokens["access"] == "" {
		t.Error("expected non-empty access token")
	}
	if tokens["refresh"] == nil || tokens["refresh"] == "" {
		t.Error("expected non-empty refresh token")
	}
}

// --- tests ---

func TestAuthHandler_Register(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		var seededFor string
		userSvc := &mockUserService{
			createUserFn: func(in services.CreateUserInput) (*models.User, error) {
				return &models.User{
					Base:      models.Base{ID: testUserID},
					Email:     in.Email,
					FirstName: in.FirstName,
					LastName:  in.LastName,
					Currency:  "USD",
					Timezone:  "UTC",
				}, nil
			},
		}
		categorySvc := &mockCategoryService{
			createDefaultCategoriesFn: func(userID string) error {
				seededFor = userID
				return nil
			},
		}
		audit := &mockAuditService{}
		r := setupAuthRouter(NewAuthHandler(userSvc, categorySvc, audit))

		rec := doRequest(r, "POST", "/auth/register",
			`{"email":"test@example.com","password":"password123","first_name":"John","last_name":"Doe"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		assertTokens(t, result["tokens"].(map[string]interface{}))
		user := result["user"].(map[string]interface{})
		if user["email"] != "test@example.com" {
			t.Errorf("expected email test@example.com, got %v", user["email"])
		}
		if _, leaked := user["password"]; leaked {
			t.Error("password must not be serialized")
		}
		if seededFor != testUserID {
			t.Errorf("expected default categories for %s, got %q", testUserID, seededFor)
		}
		if !audit.logged("REGISTER") {
			t.Error("expected REGISTER audit entry")
		}
	})

	t.Run("returns 400 on missing email", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"password":"password123"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on short password", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"email":"test@example.com","password":"short"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on unknown currency", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register",
			`{"email":"test@example.com","password":"password123","currency":"XYZ"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 409 on duplicate email", func(t *testing.T) {
		userSvc := &mockUserService{
			createUserFn: func(_ services.CreateUserInput) (*models.User, error) {
				return nil, apperrors.ErrDuplicateEmail
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"email":"dup@example.com","password":"password123"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_EMAIL")
	})

	t.Run("stores refresh token hash", func(t *testing.T) {
		var storedHash string
		userSvc := &mockUserService{
			storeRefreshTokenHashFn: func(_ string, hash string) error {
				storedHash = hash
				return nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"email":"test@example.com","password":"password123"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if len(storedHash) != 64 {
			t.Errorf("expected SHA-256 hex digest (64 chars), got %d chars", len(storedHash))
		}
		tokens := parseJSON(t, rec)["tokens"].(map[string]interface{})
		if middleware.HashToken(tokens["refresh"].(string)) != storedHash {
			t.Error("stored hash does not match the returned refresh token")
		}
	})

	t.Run("returns 500 when token storage fails", func(t *testing.T) {
		userSvc := &mockUserService{
			storeRefreshTokenHashFn: func(_, _ string) error {
				return fmt.Errorf("db connection lost")
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/register", `{"email":"test@example.com","password":"password123"}`)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("returns 500 when seeding categories fails", func(t *testing.T) {
		categorySvc := &mockCategoryService{
			createDefaultCategoriesFn: func(_ string) error {
				return apperrors.ErrInternalServer
			},
		}
		var removed string
		userSvc := &mockUserService{
			deleteUserFn: func(userID string) error {
				removed = userID
				return nil
			},
		}
		audit := &mockAuditService{}
		r := setupAuthRouter(NewAuthHandler(userSvc, categorySvc, audit))

		rec := doRequest(r, "POST", "/auth/register", `{"email":"test@example.com","password":"password123"}`)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if removed != testUserID {
			t.Errorf("expected the new user to be removed, got %q", removed)
		}
		if audit.logged("REGISTER") {
			t.Error("expected no REGISTER audit entry")
		}
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("returns 200 on success", func(t *testing.T) {
		userSvc := &mockUserService{
			attemptLoginFn: func(email, _ string) (*models.User, error) {
				return &models.User{Base: models.Base{ID: testUserID}, Email: email, FirstName: "Test"}, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/login", `{"email":"test@example.com","password":"password123"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		assertTokens(t, result["tokens"].(map[string]interface{}))
		if result["user"].(map[string]interface{})["id"] != testUserID {
			t.Errorf("expected user id %s", testUserID)
		}
	})

	t.Run("returns 401 on invalid credentials", func(t *testing.T) {
		userSvc := &mockUserService{
			attemptLoginFn: func(_, _ string) (*models.User, error) {
				return nil, apperrors.ErrInvalidCredentials
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/login", `{"email":"test@example.com","password":"wrong"}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_CREDENTIALS")
	})

	t.Run("returns 423 on locked account", func(t *testing.T) {
		userSvc := &mockUserService{
			attemptLoginFn: func(_, _ string) (*models.User, error) {
				return nil, apperrors.ErrAccountLocked
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/login", `{"email":"locked@example.com","password":"password123"}`)

		if rec.Code != http.StatusLocked {
			t.Fatalf("expected 423, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ACCOUNT_LOCKED")
	})

	t.Run("returns 400 on missing fields", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/login", `{}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	user := &models.User{Base: models.Base{ID: testUserID}, Email: "test@example.com"}
	pair, err := middleware.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("failed to generate tokens: %v", err)
	}

	t.Run("returns 200 and rotates the pair", func(t *testing.T) {
		var rotatedHash string
		userSvc := &mockUserService{
			getRefreshTokenHashFn: func(_ string) (string, error) {
				return middleware.HashToken(pair.Refresh), nil
			},
			getUserByIDFn: func(_ string) (*models.User, error) {
				return user, nil
			},
			storeRefreshTokenHashFn: func(_, hash string) error {
				rotatedHash = hash
				return nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/token/refresh", fmt.Sprintf(`{"refresh":%q}`, pair.Refresh))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		assertTokens(t, result)
		if rotatedHash == middleware.HashToken(pair.Refresh) {
			t.Error("expected a new refresh token hash to be stored")
		}
	})

	t.Run("returns 401 when the stored hash differs", func(t *testing.T) {
		userSvc := &mockUserService{
			getRefreshTokenHashFn: func(_ string) (string, error) {
				return middleware.HashToken("some-other-token"), nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/token/refresh", fmt.Sprintf(`{"refresh":%q}`, pair.Refresh))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_REFRESH_TOKEN")
	})

	t.Run("returns 401 for an access token", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/token/refresh", fmt.Sprintf(`{"refresh":%q}`, pair.Access))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("returns 401 for garbage", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/token/refresh", `{"refresh":"not.a.jwt"}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("returns 400 without a token", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "POST", "/auth/token/refresh", `{}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestAuthHandler_GetProfile(t *testing.T) {
	t.Run("returns 200 with user profile", func(t *testing.T) {
		now := time.Now()
		userSvc := &mockUserService{
			getUserByIDFn: func(id string) (*models.User, error) {
				return &models.User{
					Base:        models.Base{ID: id},
					Email:       "test@example.com",
					FirstName:   "John",
					LastName:    "Doe",
					Currency:    "EUR",
					Timezone:    "Europe/Berlin",
					LastLoginAt: &now,
				}, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		user := parseJSON(t, rec)["user"].(map[string]interface{})
		if user["email"] != "test@example.com" {
			t.Errorf("expected test@example.com, got %v", user["email"])
		}
		if user["currency"] != "EUR" || user["timezone"] != "Europe/Berlin" {
			t.Errorf("unexpected preferences: %v", user)
		}
	})

	t.Run("returns 401 without auth", func(t *testing.T) {
		handler := NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{})
		r := gin.New()
		r.GET("/profile", handler.GetProfile)

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("returns 404 when user not found", func(t *testing.T) {
		userSvc := &mockUserService{
			getUserByIDFn: func(_ string) (*models.User, error) {
				return nil, apperrors.ErrUserNotFound
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/profile", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	t.Run("passes only provided fields", func(t *testing.T) {
		var got services.ProfileUpdateFields
		userSvc := &mockUserService{
			updateProfileFn: func(userID string, fields services.ProfileUpdateFields) (*models.User, error) {
				got = fields
				return &models.User{Base: models.Base{ID: userID}, Currency: *fields.Currency}, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/profile", `{"currency":"GBP"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if got.Currency == nil || *got.Currency != "GBP" {
			t.Errorf("expected currency GBP, got %v", got.Currency)
		}
		if got.FirstName != nil || got.Timezone != nil {
			t.Error("expected omitted fields to stay nil")
		}
		user := parseJSON(t, rec)["user"].(map[string]interface{})
		if user["currency"] != "GBP" {
			t.Errorf("expected GBP in response, got %v", user["currency"])
		}
	})

	t.Run("returns 400 on unknown currency", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockCategoryService{}, &mockAuditService{}))

		rec := doRequest(r, "PUT", "/profile", `{"currency":"usd"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
