// Package app composes the payme services.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct and service wiring
//	├── domain/             # Domain models
//	│   ├── invoice/        # Invoice record and payment lifecycle
//	│   └── contact/        # Address book entries
//	├── services/           # Invoice and contact services
//	├── storage/            # Store interfaces, memory store and backends
//	│   ├── sqlstore/       # PostgreSQL and SQLite
//	│   └── boltstore/      # Embedded BoltDB file
//	├── httpapi/            # Routes, handlers and JSON views
//	└── runtime/            # Config-driven wiring and the HTTP server
//
// # Dependency Direction
//
//	cmd/payme/
//	      │
//	      ▼
//	internal/app/runtime ──► internal/middleware, internal/ratelimit
//	      │
//	      ├──► internal/app/httpapi
//	      │           │
//	      │           ▼
//	      └──► internal/app (services) ──► internal/app/storage
//
// Services never read HTTP state. Handlers pass the caller address taken
// from the wallet guard explicitly.
package app
