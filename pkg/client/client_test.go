package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/civicsense/civicsense/pkg/client"
)

func TestSignup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/signup" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["username"] != "asha" {
			t.Errorf("username = %q", req["username"])
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"user":          map[string]string{"id": "u1", "username": "asha", "role": "citizen"},
			"access_token":  "acc",
			"refresh_token": "ref",
		})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL)
	res, err := c.Signup(context.Background(), "asha", "asha@example.com", "password123", "")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if res.User.Username != "asha" || res.AccessToken != "acc" {
		t.Errorf("result = %+v", res)
	}
}

func TestLogin_unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL)
	_, err := c.Login(context.Background(), "asha", "wrong")
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCreateReport_multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("description"); got != "overflowing bin" {
			t.Errorf("description = %q", got)
		}
		f, _, err := r.FormFile("photo")
		if err != nil {
			t.Fatalf("photo missing: %v", err)
		}
		f.Close()
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"report": map[string]string{"id": "r1", "status": "pending"},
		})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("tok"))
	rep, err := c.CreateReport(context.Background(), client.CreateReportRequest{
		Description: "overflowing bin",
		Photo:       []byte("jpeg"),
	})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if rep.Status != "pending" {
		t.Errorf("status = %q", rep.Status)
	}
}

func TestStats_globalScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("scope") != "all" {
			t.Errorf("scope = %q, want all", r.URL.Query().Get("scope"))
		}
		json.NewEncoder(w).Encode(map[string]int{"total_reports": 7, "resolved": 3})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("tok"))
	stats, err := c.Stats(context.Background(), true)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 7 || stats.Resolved != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUpdateReportStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/api/v1/reports/r1/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]string{"id": "r1", "status": req["status"]})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("tok"))
	rep, err := c.UpdateReportStatus(context.Background(), "r1", "resolved")
	if err != nil {
		t.Fatalf("UpdateReportStatus: %v", err)
	}
	if rep.Status != "resolved" {
		t.Errorf("status = %q", rep.Status)
	}
}

func TestClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("image missing: %v", err)
		}
		f.Close()
		json.NewEncoder(w).Encode(map[string]string{
			"category":      "road",
			"severity":      "high",
			"response_time": "Task must be addressed within 1 day",
		})
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL, client.WithBearerToken("tok"))
	res, err := c.Classify(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Category != "road" || res.Severity != "high" {
		t.Errorf("classification = %+v", res)
	}
}
