package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowgate/gateway/gateway/apitypes"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}
	return path
}

func TestLoadSeedFileUnifiesLegacyAuthBool(t *testing.T) {
	path := writeSeedFile(t, `[
		{"path": "/myapi/movies", "method": "GET", "host": "MOVIES_HOST", "port": 8080, "auth": false},
		{"path": "/myapi/movies/{id}", "method": "DELETE", "host": "MOVIES_HOST", "port": 8080, "auth": true}
	]`)

	defs, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	unsecured := defs[0].Definition
	if unsecured.AuthType != apitypes.AuthNone {
		t.Fatalf("expected auth:false to become AuthNone, got %v", unsecured.AuthType)
	}
	if !unsecured.Endpoints()[0].NotSecured {
		t.Fatalf("expected auth:false route to be not_secured")
	}

	secured := defs[1].Definition
	if secured.AuthType != apitypes.AuthJWT {
		t.Fatalf("expected auth:true to become AuthJWT, got %v", secured.AuthType)
	}
	if secured.Endpoints()[0].NotSecured {
		t.Fatalf("expected auth:true route to be secured")
	}
	if !secured.AuthOptions.UseHeader || !secured.AuthOptions.UseQuery {
		t.Fatalf("expected default header+query token sources, got %+v", secured.AuthOptions)
	}
	if secured.Proxy.TargetURL != "MOVIES_HOST" || !secured.Proxy.UseEnv {
		t.Fatalf("expected host to be carried as an env var name, got %+v", secured.Proxy)
	}
}

func TestLoadSeedFileMissingFileErrors(t *testing.T) {
	if _, err := LoadSeedFile("/nonexistent/seed.json"); err == nil {
		t.Fatalf("expected an error for a missing seed file")
	}
}
