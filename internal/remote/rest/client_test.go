package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stablebook/stablesync/internal/errors"
	"github.com/stablebook/stablesync/internal/models"
)

// TestFetchAllDecodesAndAuthenticates verifies the bearer token is sent
// and the JSON collection decodes into models.
func TestFetchAllDecodesAndAuthenticates(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]models.Client{
			{ID: "11111111-1111-4111-8111-111111111111", FirstName: "Jo", UpdatedAt: 42},
		})
	}))
	defer srv.Close()

	remotes := NewClient(srv.URL, "token-1", time.Second).Remotes()
	clients, err := remotes.Clients.FetchAll(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}
	if gotPath != "/users/user-1/clients" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if len(clients) != 1 || clients[0].FirstName != "Jo" || clients[0].UpdatedAt != 42 {
		t.Errorf("Unexpected decode result: %v", clients)
	}
}

// TestCreateSendsJSONBody verifies create posts the entity as JSON.
func TestCreateSendsJSONBody(t *testing.T) {
	var gotMethod string
	var gotBody models.Horse
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	remotes := NewClient(srv.URL, "", time.Second).Remotes()
	h := &models.Horse{ID: "22222222-2222-4222-8222-222222222222", Name: "Comet"}
	if err := remotes.Horses.Create(context.Background(), h); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("Expected POST, got %s", gotMethod)
	}
	if gotBody.Name != "Comet" {
		t.Errorf("Expected body to carry the horse, got %v", gotBody)
	}
}

// TestErrorStatusMapsToRemoteRejected verifies non-2xx responses carry
// the remote-rejected code.
func TestErrorStatusMapsToRemoteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "validation failed", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	remotes := NewClient(srv.URL, "", time.Second).Remotes()
	err := remotes.Invoices.Delete(context.Background(), "33333333-3333-4333-8333-333333333333")
	if !errors.Is(err, errors.ErrRemoteRejected) {
		t.Fatalf("Expected ErrRemoteRejected, got %v", err)
	}
}

// TestTransportFailureMapsToNetworkUnavailable verifies a dead server
// carries the network code, which aborts the sync cycle.
func TestTransportFailureMapsToNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	remotes := NewClient(url, "", 200*time.Millisecond).Remotes()
	_, err := remotes.Appointments.FetchAll(context.Background(), "user-1")
	if !errors.Is(err, errors.ErrNetworkUnavailable) {
		t.Fatalf("Expected ErrNetworkUnavailable, got %v", err)
	}
}

// TestFetchLines verifies the child collection endpoint shape.
func TestFetchLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invoices/44444444-4444-4444-8444-444444444444/lines" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]models.InvoiceLine{
			{Position: 1, Description: "Full set", Quantity: 1, UnitPriceCents: 12000},
		})
	}))
	defer srv.Close()

	remotes := NewClient(srv.URL, "", time.Second).Remotes()
	lines, err := remotes.Invoices.FetchLines(context.Background(), "44444444-4444-4444-8444-444444444444")
	if err != nil {
		t.Fatalf("FetchLines failed: %v", err)
	}
	if len(lines) != 1 || lines[0].UnitPriceCents != 12000 {
		t.Errorf("Unexpected lines: %v", lines)
	}
}
