package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jluzny/hag/internal/service"
)

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSignUp_Success(t *testing.T) {
	auth := &mockAuth{signUpID: 11}
	r := newAuthedRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-up", map[string]string{
		"username": "alice", "password": "s3cr3t",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != 11 {
		t.Fatalf("id = %d, want 11", resp.ID)
	}
	if auth.lastSignUpUsername != "alice" || auth.lastSignUpPassword != "s3cr3t" {
		t.Fatalf("service got %q/%q", auth.lastSignUpUsername, auth.lastSignUpPassword)
	}
}

func TestSignUp_MissingFields(t *testing.T) {
	auth := &mockAuth{}
	r := newAuthedRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-up", map[string]string{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if auth.lastSignUpUsername != "" {
		t.Fatal("service must not be called on bind failure")
	}
}

func TestSignUp_ServiceError(t *testing.T) {
	auth := &mockAuth{signUpErr: errors.New("username taken")}
	r := newAuthedRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-up", map[string]string{
		"username": "alice", "password": "x",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSignIn_Success(t *testing.T) {
	auth := &mockAuth{genTokenToken: "jwt-token"}
	r := newAuthedRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-in", map[string]string{
		"username": "alice", "password": "s3cr3t",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token != "jwt-token" {
		t.Fatalf("token = %q", resp.Token)
	}
}

func TestSignIn_BadCredentials(t *testing.T) {
	auth := &mockAuth{genTokenErr: errors.New("invalid password")}
	r := newAuthedRouter(&service.Service{Authorization: auth})

	w := postJSON(t, r, "/auth/sign-in", map[string]string{
		"username": "alice", "password": "nope",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
