// Package config loads the static seed-route file: the JSON array that
// bootstraps the registry before the admin API or gossip layer ever
// mutates it.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flowgate/gateway/gateway/apitypes"
)

// Route is one seed-route record. auth is the legacy bool shape; richer
// auth_type records are not expressible in the seed format and are
// expected to arrive via the admin API instead.
type Route struct {
	Path   string `json:"path"`
	Method string `json:"method"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Auth   bool   `json:"auth"`
}

// LoadSeedFile reads a JSON array of Route records from path and converts
// each into a single-endpoint API definition keyed by its own index-derived
// id. A legacy auth:true/false record unifies onto the richer auth_type
// shape: auth:true becomes auth_type:"jwt" with the default header/query
// token sources, and auth:false (or a missing field, which decodes to
// false) becomes auth_type:"none".
func LoadSeedFile(path string) ([]apitypes.NamedDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var routes []Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	defs := make([]apitypes.NamedDefinition, 0, len(routes))
	for i, route := range routes {
		defs = append(defs, routeToDefinition(i, route))
	}
	return defs, nil
}

func routeToDefinition(index int, route Route) apitypes.NamedDefinition {
	authType := apitypes.AuthNone
	var opts apitypes.AuthOptions
	if route.Auth {
		authType = apitypes.AuthJWT
		opts = apitypes.AuthOptions{UseHeader: true, HeaderName: "Authorization", UseQuery: true, QueryName: "token"}
	}

	id := fmt.Sprintf("seed-%d", index)
	def := apitypes.Definition{
		Name:        id,
		AuthType:    authType,
		AuthOptions: opts,
		Proxy: apitypes.ProxyConfig{
			TargetURL: route.Host,
			Port:      route.Port,
			UseEnv:    true,
		},
		Versioned: false,
		VersionData: map[string]apitypes.VersionData{
			apitypes.DefaultVersion: {
				Endpoints: []apitypes.Endpoint{{
					ID:         id,
					Method:     apitypes.Method(route.Method),
					Path:       route.Path,
					NotSecured: !route.Auth,
				}},
			},
		},
	}
	return apitypes.NamedDefinition{ID: id, Definition: def}
}
