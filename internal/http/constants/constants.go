package constants

import "time"

const (
	StorageOperationTimeout = 5 * time.Second
	RemoteOperationTimeout  = 30 * time.Second
)
