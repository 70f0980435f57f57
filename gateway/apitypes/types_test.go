package apitypes

import (
	"testing"
	"time"
)

func testDefinition() Definition {
	return Definition{
		Name:     "movies",
		AuthType: AuthJWT,
		Proxy:    ProxyConfig{TargetURL: "SVC_A_HOST", Port: 8080, UseEnv: true},
		VersionData: map[string]VersionData{
			DefaultVersion: {
				Endpoints: []Endpoint{
					{ID: "ep1", Method: MethodGet, Path: "/movies/{id}"},
				},
			},
		},
		RefNumber: 3,
		Timestamp: time.Unix(100, 0),
		NodeName:  "node-a",
		PhxRef:    "ref-1",
	}
}

func TestDefinitionEqualIgnoresBookkeeping(t *testing.T) {
	a := testDefinition()
	b := testDefinition()
	b.RefNumber = 9
	b.Timestamp = time.Unix(999, 0)
	b.NodeName = "node-b"
	b.PhxRef = "ref-2"

	if !a.Equal(b) {
		t.Fatalf("expected definitions to be equal ignoring bookkeeping fields")
	}
}

func TestDefinitionEqualDetectsContentDrift(t *testing.T) {
	a := testDefinition()
	b := testDefinition()
	b.Name = "movies-v2"
	if a.Equal(b) {
		t.Fatalf("expected name drift to break equality")
	}

	c := testDefinition()
	eps := c.VersionData[DefaultVersion]
	eps.Endpoints = append(eps.Endpoints, Endpoint{ID: "ep2", Method: MethodPost, Path: "/movies"})
	c.VersionData[DefaultVersion] = eps
	if a.Equal(c) {
		t.Fatalf("expected endpoint-set drift to break equality")
	}
}

func TestDefinitionEndpoints(t *testing.T) {
	d := testDefinition()
	if len(d.Endpoints()) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(d.Endpoints()))
	}

	empty := Definition{}
	if eps := empty.Endpoints(); eps != nil {
		t.Fatalf("expected nil endpoints for unversioned definition, got %v", eps)
	}
}
