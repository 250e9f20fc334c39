// Package models holds the GORM persistence models that map domain
// entities to database tables. Domain entities stay free of ORM tags;
// the repository layer converts between the two.
//
// base.go carries the shared UUID primary key and timestamp columns,
// user.go maps the user table including the test-user marker and batch
// membership columns that every bulk operation filters on.
package models
