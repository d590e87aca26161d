package sshserver

// Config defines SSH mirror settings.
type Config struct {
	Addr           string
	HostKeyPath    string
	AuthorizedKeys string
	Theme          string
}
