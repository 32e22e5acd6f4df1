// Package cloverbridge connects Clover payment processing to GoHighLevel
// invoicing. It receives asynchronous payment notifications from Clover,
// matches them to tracked GoHighLevel invoices, and records the payment in
// the CRM; it also serves the synchronous query gateway GoHighLevel calls
// to verify charges and request refunds.
//
// # Overview
//
// Clover merchants take payments on POS devices and hosted payment forms
// while their invoicing lives in GoHighLevel. The two systems share no
// identifiers, so this service reconciles them: invoices awaiting payment
// are registered with an amount and an optional invoice number, and each
// incoming Clover payment is resolved against them by reference text first
// and by exact amount and recency second.
//
// # Architecture
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│  GoHighLevel    │◄──►│  cloverbridge   │◄──►│     Clover      │
//	│   (CRM)         │    │  (reconciler)   │    │  (processor)    │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// All cross-request state lives in a key-value store (SQLite, Bolt, or
// in-memory), and matching consumes entries atomically so an invoice is
// matched at most once even under concurrent webhook deliveries.
//
// # Endpoints
//
//   - POST /webhooks/clover: processor payment notifications
//   - POST /query: GoHighLevel verification/refund gateway
//   - POST /invoices/track: register an invoice as awaiting payment
//   - POST /payments/process: direct charge with a tokenized card
//   - POST /setup: tenant provisioning (API key, merchant mapping)
//   - GET /events: recent reconciliation events (ops)
//   - GET /events/charges/{chargeID}: event history for one charge (ops)
//   - GET /payments/unmatched/{chargeID}: unmatched payment record (ops)
//   - GET /health: service health
//
// For more information, visit: https://github.com/mstgnz/cloverbridge
package cloverbridge
