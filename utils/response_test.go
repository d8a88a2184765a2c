package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestEnvelopeHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, http.StatusCreated, "created", gin.H{"id": 1})

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusCreated || body["status"] != "success" || body["message"] != "created" {
		t.Errorf("unexpected success envelope: %d %v", w.Code, body)
	}
	if _, ok := body["errors"]; ok {
		t.Error("success envelope should omit errors")
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Abort(c, http.StatusForbidden, "Access denied")
	if !c.IsAborted() {
		t.Error("expected context to be aborted")
	}
	body = map[string]interface{}{}
	json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusForbidden || body["status"] != "error" {
		t.Errorf("unexpected error envelope: %d %v", w.Code, body)
	}
}
