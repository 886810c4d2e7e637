// Package models holds the GORM models and their migration.
package models

import "gorm.io/gorm"

// migrationOrder lists the models parents-first so foreign keys resolve
var migrationOrder = []interface{}{
	&User{},
	&Group{},
	&GroupMembership{},
	&Message{},
}

// AutoMigrate creates or updates the tables for every model
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(migrationOrder...)
}
