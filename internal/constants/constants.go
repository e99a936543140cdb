package constants

import "time"

const (
	DefaultQueueLifeSpan = 7 * 24 * time.Hour
	DefaultRetryInterval = time.Minute
)

const (
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultStoreTimeout = 5 * time.Second
)

// Requests whose encoded parameters stay below MaxGETSize are sent as
// GET, below MaxPOSTSize as POST, anything larger is dropped.
const (
	MaxGETSize  = 2036
	MaxPOSTSize = 8196
)

const (
	SecureEndpoint   = "https://ssl.google-analytics.com/collect"
	InsecureEndpoint = "http://www.google-analytics.com/collect"
)

const (
	KeyPrefixRequest  = "hitqueue:req:"
	KeyPrefixClientID = "clientid:"
)

const (
	DefaultWorkers         = 4
	DefaultJanitorInterval = time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	StoreTypeMemory = "memory"
	StoreTypeFS     = "fs"
	StoreTypeRedis  = "redis"
)

const (
	UserAgent = "hitqueue/1.0"
)
