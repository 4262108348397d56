// Package mysql persists the order journal in MySQL. It embeds the schema
// migrations under deploy/migrations and applies them on open.
package mysql
