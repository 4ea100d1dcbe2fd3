package env

const (
	// Prefix is the common prefix of every p2prates ENV variable
	Prefix = "P2PRATES_"

	// DBURLSuffix is the PostgreSQL DSN variable suffix
	DBURLSuffix = "DB_URL"

	// NATSURLSuffix is the NATS server URL variable suffix.
	// Rate publishing is disabled when unset
	NATSURLSuffix = "NATS_URL"
)
