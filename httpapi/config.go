package httpapi

// Config defines HTTP mirror settings.
type Config struct {
	Addr       string
	BaseURL    string
	BasePath   string
	HubHistory int
}
