package config

const (
	DefaultAPIBaseURL   = "http://localhost:8000"
	DefaultAPITimeoutMS = 30000
	DefaultUserAgent    = "vidpredict-cli"

	DefaultHistoryPageSize = 20
	MaxHistoryPageSize     = 100

	DefaultUploadMaxBytes       = 200 << 20
	DefaultUploadMinDurationSec = 2
)

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)
