// Package gopos is a card payment gateway for Turkish virtual POS banks. It
// puts EST (Asseco) based banks, Garanti, Akbank and Kuveyt Türk behind one
// HTTP API and runs their 3-D Secure flows.
//
// # Overview
//
// Every bank speaks its own dialect: XML or form posts, SHA-1 or SHA-512
// hashes, different transaction codes and currency codes, different
// callbacks after 3-D authentication. GoPOS maps one canonical order and
// card model onto each of them and maps the answers back onto one result
// model.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Merchants     │◄──►│      GoPOS      │◄──►│   Bank virtual  │
//	│  (shop1, shop2) │    │    (Gateway)    │    │   POS endpoints │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └────────┬────────┘    └─────────────────┘
//	                                │
//	                    SQLite accounts, Redis 3-D sessions,
//	                    OpenSearch audit, Prometheus metrics
//
// # Supported Gateways
//
//   - estpos, estpos_v3: EST based banks (İş Bankası, Ziraat, Halkbank, ...)
//   - garanti: Garanti BBVA virtual POS
//   - akbank: Akbank JSON virtual POS
//   - kuveytpos: Kuveyt Türk virtual POS
//
// # Security Models
//
//   - regular: card is charged directly, no 3-D authentication
//   - 3d: card holder authenticates, then GoPOS sends the provision
//   - 3d_pay: the bank authenticates and charges in one step
//   - 3d_pay_hosting, 3d_host: the bank hosts the card form
//
// # Quick Start
//
// Store the merchant's bank credentials once:
//
//	PUT /v1/accounts/estpos
//	Authorization: Bearer <API_KEY>
//	X-Merchant-Key: shop1
//
//	{"merchant_id": "700100000", "username": "api", "password": "***",
//	 "store_key": "***", "models": ["3d", "regular"], "test_mode": true}
//
// Start a 3-D payment:
//
//	POST /v1/payments/estpos
//	{"order": {"id": "ORD-1", "amount": "100.50", "currency": "TRY",
//	           "success_url": "https://shop1.example/ok", "fail_url": "https://shop1.example/fail"},
//	 "model": "3d",
//	 "card": {"number": "4355084355084358", "expire_year": 30, "expire_month": 12, "cvv": "000"}}
//
// The response carries a session id and the form that sends the card
// holder to the bank. The bank posts back to /callback/{gateway}/{session};
// GoPOS verifies the hash, sends the provision when the model needs one and
// redirects the browser to success_url or fail_url.
//
// # Configuration
//
// Configuration comes from the environment (or a .env file):
//
//	APP_PORT=9999
//	API_KEY=secret
//	CALLBACK_BASE_URL=https://pos.example.com
//	SQLITE_PATH=./gopos.db
//	REDIS_ADDR=localhost:6379
//	ENABLE_OPENSEARCH_LOGGING=true
//	OPENSEARCH_URL=http://localhost:9200
//
// See infra/config for the full list.
package gopos
