package common

// Env ... Application environment
type Env string

const (
	Production  Env = "production"
	Development Env = "development"
	Local       Env = "local"
)

// VersionString ... Reported by the VERSION command and the stats output
const VersionString = "1.6.21-mcbridge"

// MaxKeyLength ... Longest key accepted by the text protocol
const MaxKeyLength = 250
