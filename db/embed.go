// Package db embeds the SQL schema applied on startup.
package db

import _ "embed"

// Schema holds the full DDL for the shop: catalog, coupons, customers,
// orders and the order code sequence, plus email templates.
//
//go:embed migrations/001_schema.sql
var Schema string
