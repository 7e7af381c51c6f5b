package gateway

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantNil    bool
		wantPerm   bool
	}{
		{name: "200 returns nil", statusCode: 200, wantNil: true},
		{name: "204 returns nil", statusCode: 204, wantNil: true},
		{name: "400 is permanent", statusCode: 400, body: "bad phone", wantPerm: true},
		{name: "401 is permanent", statusCode: 401, body: "unauthorized", wantPerm: true},
		{name: "403 is permanent", statusCode: 403, body: "forbidden", wantPerm: true},
		{name: "404 is permanent", statusCode: 404, body: "not found", wantPerm: true},
		{name: "429 is transient", statusCode: 429, body: "slow down", wantPerm: false},
		{name: "500 is transient", statusCode: 500, body: "internal error", wantPerm: false},
		{name: "503 is transient", statusCode: 503, body: "unavailable", wantPerm: false},
		{name: "500 with invalid token is permanent", statusCode: 500, body: "Invalid Token", wantPerm: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge := ClassifyHTTPError(tt.statusCode, tt.body)
			if tt.wantNil {
				if ge != nil {
					t.Fatalf("expected nil, got %v", ge)
				}
				return
			}
			if ge == nil {
				t.Fatal("expected error, got nil")
			}
			if ge.Permanent != tt.wantPerm {
				t.Errorf("expected permanent=%v, got %v", tt.wantPerm, ge.Permanent)
			}
			if ge.StatusCode != tt.statusCode {
				t.Errorf("expected status %d, got %d", tt.statusCode, ge.StatusCode)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(&Error{Permanent: true}) {
		t.Error("expected permanent error to be permanent")
	}
	if IsPermanent(&Error{Permanent: false}) {
		t.Error("expected transient error not to be permanent")
	}
	if IsPermanent(errors.New("boom")) {
		t.Error("expected unknown error not to be permanent")
	}
	wrapped := fmt.Errorf("send: %w", &Error{StatusCode: 404, Permanent: true})
	if !IsPermanent(wrapped) {
		t.Error("expected wrapped permanent error to be permanent")
	}
}

func TestClassifyRejection(t *testing.T) {
	if !classifyRejection("number not registered on whatsapp").Permanent {
		t.Error("expected unregistered number to be permanent")
	}
	if classifyRejection("device busy, try again").Permanent {
		t.Error("expected busy device to be transient")
	}
}
