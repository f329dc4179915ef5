package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr     string
	BasePath string
	// HubHistory bounds the number of stream events kept for replay.
	HubHistory int
}
