package mongostore

import "errors"

var (
	ErrFailedToConnect = errors.New("failed to connect to mongodb")
	ErrFailedToDecode  = errors.New("failed to decode subscription document")
)
