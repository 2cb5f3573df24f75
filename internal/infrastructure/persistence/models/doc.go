// Package models holds the gorm persistence models of the catalog tables
// and their conversions to and from domain entities.
package models
