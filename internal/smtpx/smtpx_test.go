package smtpx

import (
	"testing"

	"github.com/courierd/courier"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		key      *courier.Credential
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{
			name:     "known provider",
			key:      &courier.Credential{User: "a@qq.com", Company: courier.ProviderQQ},
			wantHost: "smtp.qq.com",
			wantPort: 465,
		},
		{
			name:     "gmail uses submission port",
			key:      &courier.Credential{User: "a@gmail.com", Company: courier.ProviderGmail},
			wantHost: "smtp.gmail.com",
			wantPort: 587,
		},
		{
			name:     "other falls back to account domain",
			key:      &courier.Credential{User: "a@corp.example.com", Company: courier.ProviderOther},
			wantHost: "smtp.corp.example.com",
			wantPort: 587,
		},
		{
			name:    "other without a domain",
			key:     &courier.Credential{User: "not-an-address", Company: courier.ProviderOther},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := resolveEndpoint(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if e.host != tt.wantHost || e.port != tt.wantPort {
				t.Fatalf("got %s:%d, want %s:%d", e.host, e.port, tt.wantHost, tt.wantPort)
			}
		})
	}
}
