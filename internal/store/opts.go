package store

// Opts holds configuration options for storage backends.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite, a
	// postgres:// URL for PostgreSQL.
	DSN string
}

// Option defines a configuration option for storage backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}
