// Package config handles configuration loading for coven-relay.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/relay.yaml
//  3. ~/.config/coven/relay.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}:
//
//	auth:
//	  jwt_secret: "${RELAY_JWT_SECRET}"
//
// # Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  read_header_timeout: "10s"
//	  shutdown_timeout: "5s"
//
//	history:
//	  backend: "file"            # or "sqlite"
//	  path: "chatHistory.json"
//
//	contact:
//	  path: "messages.json"
//
//	auth:
//	  admin_username: "admin"    # empty disables admin login
//	  admin_password_hash: "$2a$10$..."
//	  jwt_secret: "${RELAY_JWT_SECRET}"
//	  token_ttl: "12h"
//
//	notify:
//	  enabled: true
//	  smtp_host: "smtp.example.com"
//	  from: "relay@example.com"
//	  to: ["ops@example.com"]
//	  max_in_flight: 4           # concurrent SMTP sends
//	  backlog: 64                # queued beyond that; further messages are dropped
//	  coalesce_window: "1m"     # 0 sends one email per message
//
//	limits:
//	  frames_per_second: 20
//	  burst: 40
//
//	logging:
//	  level: "info"
//	  format: "text"             # or "json"
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Durations use time.ParseDuration syntax. Omitted fields take the values
// returned by Default.
package config
