// Package postgres stores principals, API keys, permission rules and the
// activity log with gorm. SQL migrations are embedded and applied by
// RunMigrations.
package postgres
