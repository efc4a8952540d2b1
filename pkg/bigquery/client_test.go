package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
)

func TestClientOptionsPrefersInlineJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"type": "service_account"}`,
		ApplicationCredentials: "/var/secrets/gcp.json",
	}
	if opts := clientOptions(gcp); len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsWithFile(t *testing.T) {
	opts := clientOptions(config.GCPConfig{ApplicationCredentials: "/var/secrets/gcp.json"})
	if len(opts) != 1 {
		t.Fatalf("expected 1 option when using credentials file, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected no options without credentials, got %d", len(opts))
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	cases := map[string]struct {
		gcp  config.GCPConfig
		cfg  config.BigQueryConfig
		want error
	}{
		"project": {gcp: config.GCPConfig{ProjectID: " "}, cfg: config.BigQueryConfig{Dataset: "d", LedgerEventsTable: "t"}, want: errProjectIDRequired},
		"dataset": {gcp: config.GCPConfig{ProjectID: "p"}, cfg: config.BigQueryConfig{LedgerEventsTable: "t"}, want: errDatasetRequired},
		"table":   {gcp: config.GCPConfig{ProjectID: "p"}, cfg: config.BigQueryConfig{Dataset: "d", LedgerEventsTable: " "}, want: errTableRequired},
	}
	for name, tc := range cases {
		if _, err := NewClient(ctx, tc.gcp, tc.cfg, nil); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := c.InsertRows(context.Background(), "ledger_events", []any{struct{}{}}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if c.Table() != "" {
		t.Fatalf("expected empty table name")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})) {
		t.Fatal("expected wrapped 404 to be not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 is not a missing resource")
	}
	if isNotFound(errors.New("boom")) {
		t.Fatal("plain error is not a missing resource")
	}
}
