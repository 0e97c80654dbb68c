// Package config provides application configuration management from
// environment variables and an optional YAML file.
//
// # Overview
//
// Defaults are applied first, then the YAML file named by IAR_CONFIG_FILE
// (if any), then IAR_* environment variables. The result is validated before
// it is returned.
//
// # Configuration Structure
//
// Server settings:
//
//	IAR_HOST="0.0.0.0"
//	IAR_PORT="8080"
//	IAR_READ_TIMEOUT="15s"
//	IAR_SHUTDOWN_TIMEOUT="30s"
//
// Storage and cache settings:
//
//	IAR_DATABASE_URL="postgres://localhost/iar?sslmode=disable"
//	IAR_DATABASE_MAX_CONNS="20"
//	IAR_REDIS_URL="redis://localhost:6379"  # empty: in-process cache
//
// OAuth2 and lookup settings (all required):
//
//	IAR_OAUTH2_CLIENT_ID="iar"
//	IAR_OAUTH2_CLIENT_SECRET="..."
//	IAR_OAUTH2_TOKEN_URL="https://auth.example.com/oauth2/token"
//	IAR_OAUTH2_INTROSPECT_URL="https://auth.example.com/oauth2/introspect"
//	IAR_OAUTH2_INTROSPECT_SCOPES="hydra.introspect"
//	IAR_LOOKUP_ROOT="https://lookupproxy.example.com"
//
// Asset API settings:
//
//	IAR_REQUIRED_SCOPES="assetregister"
//	IAR_USERS_LOOKUP_GROUP="uis-iar-users"
//	IAR_LOOKUP_CACHE_TTL="30m"
//	IAR_PAGE_SIZE="25"
//	IAR_STATS_SCHEDULE="*/5 * * * *"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("listening on", cfg.Addr())
package config
