package api

import "time"

// TunnelInfo describes an active tunnel in the server status API
type TunnelInfo struct {
	Name    string    `json:"name"`
	Client  string    `json:"client"`
	Target  string    `json:"target"`
	State   string    `json:"state"`
	Started time.Time `json:"started"`
}

// TunnelList is the response of the tunnels endpoint
type TunnelList struct {
	Active  int          `json:"active"`
	Limit   int64        `json:"limit"`
	Tunnels []TunnelInfo `json:"tunnels"`
}
