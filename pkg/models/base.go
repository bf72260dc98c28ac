package models

import (
	"gorm.io/gorm"
)

// MigrationFunc creates the tables of the persistence layer
func MigrationFunc(conn *gorm.DB) error {
	// use conn.Debug().AutoMigrate(...) to enable debugging
	return conn.AutoMigrate(&Conversation{}, &Message{}, &Image{})
}
