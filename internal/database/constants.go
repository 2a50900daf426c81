package database

// Drivers accepted by DATABASE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMariaDB  = "mariadb"
)

// MaxUserIDLength bounds user identifiers in both schemas.
const MaxUserIDLength = 64
