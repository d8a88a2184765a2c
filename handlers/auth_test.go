package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"noircafe-backend/firebase"
	"noircafe-backend/ledger"
	"noircafe-backend/models"

	"gorm.io/gorm"
)

// afterNextUserRead runs fn once, right after the next query against the
// users table returns, so another writer can land between a handler's read
// and its write.
func afterNextUserRead(t *testing.T, db *gorm.DB, fn func()) *bool {
	t.Helper()
	fired := false
	name := "test:after_user_read:" + t.Name()
	err := db.Callback().Query().After("gorm:query").Register(name, func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "users" {
			return
		}
		fired = true
		fn()
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}
	t.Cleanup(func() { _ = db.Callback().Query().Remove(name) })
	return &fired
}

func creditBetweenReadAndWrite(t *testing.T, db *gorm.DB, uid string, points int) *bool {
	svc := newTestLedger(db)
	return afterNextUserRead(t, db, func() {
		_, err := svc.AddPoints(context.Background(), ledger.Entry{
			UserUID:     uid,
			Type:        models.TransactionBonus,
			Amount:      points,
			BonusReason: "loyalty",
		})
		if err != nil {
			t.Errorf("concurrent credit failed: %v", err)
		}
	})
}

func TestRegister(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)

	body := map[string]string{
		"email":        "NewUser@Test.com",
		"password":     "secret1",
		"display_name": "New User",
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/register", body))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	data := responseData(w)
	if data["token"] == nil || data["token"] == "" {
		t.Error("expected token in response")
	}
	if data["expires_in"] != "30m0s" {
		t.Errorf("expected 30 minute expiry, got %v", data["expires_in"])
	}
	user := data["user"].(map[string]interface{})
	if user["email"] != "newuser@test.com" {
		t.Errorf("expected normalized email, got %v", user["email"])
	}
	if user["role"] != "customer" {
		t.Errorf("expected role customer, got %v", user["role"])
	}
	if !strings.HasPrefix(user["uid"].(string), "email_") {
		t.Errorf("unexpected uid %v", user["uid"])
	}
	if _, leaked := user["password"]; leaked {
		t.Error("password hash must not be serialized")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	seedTestUser(db, "existing@test.com", models.RoleCustomer)

	body := map[string]string{
		"email":        "existing@test.com",
		"password":     "secret1",
		"display_name": "Duplicate",
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/register", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestRegisterConcurrentDuplicateEmail(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	raced := afterNextUserRead(t, db, func() {
		seedTestUser(db, "race@test.com", models.RoleCustomer)
	})

	body := map[string]string{
		"email":        "race@test.com",
		"password":     "secret1",
		"display_name": "Second",
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/register", body))

	if !*raced {
		t.Fatal("expected the competing registration to run")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Email already registered") {
		t.Errorf("unexpected message %s", w.Body.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)

	body := map[string]string{"email": "not-an-email", "password": "123"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/register", body))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	resp := parseResponse(w)
	fields, _ := resp["errors"].(map[string]interface{})
	if resp["status"] != "error" || fields == nil {
		t.Fatalf("expected error envelope with field errors, got %v", resp)
	}
	if fields["email"] != "must be a valid email address" || fields["password"] != "must be at least 6 characters" {
		t.Errorf("unexpected field errors %v", fields)
	}
	if fields["display_name"] != "is required" {
		t.Errorf("expected display_name to be reported by its json name, got %v", fields)
	}
}

func TestLogin(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	user, _ := seedTestUser(db, "login@test.com", models.RoleCustomer)

	body := map[string]string{"email": "login@test.com", "password": "password123"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/login", body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	stored := reloadUser(db, user.UID)
	if stored.LoginCount != 1 || stored.LastLoginAt == nil {
		t.Errorf("expected login activity to be recorded, got count %d", stored.LoginCount)
	}
}

func TestLoginKeepsConcurrentLedgerCredit(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	user, _ := seedTestUser(db, "busy@test.com", models.RoleCustomer)
	fired := creditBetweenReadAndWrite(t, db, user.UID, 100)

	body := map[string]string{"email": "busy@test.com", "password": "password123"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/login", body))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !*fired {
		t.Fatal("expected the credit to commit during login")
	}

	stored := reloadUser(db, user.UID)
	if stored.Points.Current != 100 || stored.Points.Total != 100 {
		t.Errorf("expected the committed credit to survive, got %+v", stored.Points)
	}
	if stored.LoginCount != 1 {
		t.Errorf("expected login count 1, got %d", stored.LoginCount)
	}

	points := responseData(w)["user"].(map[string]interface{})["points"].(map[string]interface{})
	if points["current"] != float64(100) {
		t.Errorf("expected response to show the committed balance, got %v", points["current"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	seedTestUser(db, "login@test.com", models.RoleCustomer)

	body := map[string]string{"email": "login@test.com", "password": "wrong"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/login", body))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestLoginSuspendedUser(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	user, _ := seedTestUser(db, "suspended@test.com", models.RoleCustomer)
	db.Model(&models.User{}).Where("uid = ?", user.UID).Update("status", models.StatusSuspended)

	body := map[string]string{"email": "suspended@test.com", "password": "password123"}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/login", body))

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
}

func TestFirebaseLoginCreatesUser(t *testing.T) {
	db := freshDB()
	verifier := &mockVerifier{identities: map[string]*firebase.Identity{
		"good-token": {UID: "fb-123", Email: "fan@noir.cafe", Name: "Coffee Fan", EmailVerified: true},
	}}
	router := setupAuthRouter(db, verifier)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/firebase", map[string]string{"id_token": "good-token"}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	stored := reloadUser(db, "fb-123")
	if stored.Email != "fan@noir.cafe" || stored.Provider != models.ProviderGoogle || stored.LoginCount != 1 {
		t.Errorf("unexpected user %+v", stored)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/firebase", map[string]string{"id_token": "good-token"}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 on second sign-in, got %d", w.Code)
	}
	if reloadUser(db, "fb-123").LoginCount != 2 {
		t.Error("expected login count to increase")
	}

	var count int64
	db.Model(&models.User{}).Where("uid = ?", "fb-123").Count(&count)
	if count != 1 {
		t.Errorf("expected a single user row, got %d", count)
	}
}

func TestFirebaseLoginKeepsConcurrentLedgerCredit(t *testing.T) {
	db := freshDB()
	user, _ := seedTestUser(db, "regular@noir.cafe", models.RoleCustomer)
	verifier := &mockVerifier{identities: map[string]*firebase.Identity{
		"good-token": {UID: user.UID, Email: "Regular@Noir.cafe", Name: "Regular", Picture: "https://img/regular.png"},
	}}
	router := setupAuthRouter(db, verifier)
	fired := creditBetweenReadAndWrite(t, db, user.UID, 40)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/firebase", map[string]string{"id_token": "good-token"}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !*fired {
		t.Fatal("expected the credit to commit during sign-in")
	}

	stored := reloadUser(db, user.UID)
	if stored.Points.Current != 40 || stored.Points.Total != 40 {
		t.Errorf("expected the committed credit to survive, got %+v", stored.Points)
	}
	if stored.DisplayName != "Regular" || stored.PhotoURL != "https://img/regular.png" {
		t.Errorf("expected profile fields from the identity, got %+v", stored)
	}
	if stored.Email != "regular@noir.cafe" || stored.LoginCount != 1 {
		t.Errorf("expected normalized email and one login, got %s / %d", stored.Email, stored.LoginCount)
	}
}

func TestFirebaseLoginInvalidToken(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, &mockVerifier{identities: map[string]*firebase.Identity{}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/firebase", map[string]string{"id_token": "forged"}))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestFirebaseLoginVerifierFailure(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, &mockVerifier{err: errors.New("firebase unreachable")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/firebase", map[string]string{"id_token": "any"}))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "unreachable") {
		t.Error("internal error details must not leak")
	}
}

func TestFirebaseLoginNotConfigured(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/firebase", map[string]string{"id_token": "any"}))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestRefreshToken(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	_, token := seedTestUser(db, "refresh@test.com", models.RoleCustomer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/refresh", map[string]string{"token": token}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if responseData(w)["token"] == "" {
		t.Error("expected a new token")
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/refresh", map[string]string{"token": "garbage"}))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for garbage token, got %d", w.Code)
	}
}

func TestVerifyToken(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)
	_, token := seedTestUser(db, "verify@test.com", models.RoleCustomer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authRequest("GET", "/api/auth/verify", nil, token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if responseData(w)["token_valid"] != true {
		t.Error("expected token_valid true")
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("GET", "/api/auth/verify", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", w.Code)
	}
}

func TestLogout(t *testing.T) {
	db := freshDB()
	router := setupAuthRouter(db, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("POST", "/api/auth/logout", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}
