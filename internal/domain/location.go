package domain

// Location - a storage node able to hold chunks
type Location struct {
	ServiceID string `json:"service_id"`
	Addr      string `json:"addr,omitempty"`
	Rack      string `json:"rack,omitempty"`
}

// Host is the network identity used for distinctness rules.
func (l Location) Host() string {
	return l.ServiceID
}
