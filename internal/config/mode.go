package config

// Mode represents where tunnel targets live
type Mode string

const (
	// ModeLocal dials plain TCP or WebSocket targets
	ModeLocal Mode = "local"

	// ModeRemote dials an Azure Relay hybrid connection
	ModeRemote Mode = "remote"
)

// IsValid checks if the mode is valid
func (m Mode) IsValid() bool {
	return m == ModeLocal || m == ModeRemote
}

// String returns the string representation
func (m Mode) String() string {
	return string(m)
}
