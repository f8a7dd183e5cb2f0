package domain

import "github.com/pion/webrtc/v4"

// ConnectivityServer is one STUN/TURN record handed out by the directory.
type ConnectivityServer struct {
	URL        string `json:"url" mapstructure:"url"`
	Username   string `json:"username,omitempty" mapstructure:"username"`
	Credential string `json:"credential,omitempty" mapstructure:"credential"`
}

func (s ConnectivityServer) ICEServer() webrtc.ICEServer {
	out := webrtc.ICEServer{URLs: []string{s.URL}}
	if s.Username != "" {
		out.Username = s.Username
		out.Credential = s.Credential
	}
	return out
}

func ICEServers(servers []ConnectivityServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, s.ICEServer())
	}
	return out
}
