package types

import "testing"

func TestUserVolumeTag(t *testing.T) {
	if got := UserVolumeTag(0); got != "uservol0" {
		t.Errorf("UserVolumeTag(0) = %q, want uservol0", got)
	}
	if got := UserVolumeTag(12); got != "uservol12" {
		t.Errorf("UserVolumeTag(12) = %q, want uservol12", got)
	}
}

func TestTransportURI(t *testing.T) {
	cases := []struct {
		t    Transport
		want string
	}{
		{Transport{Kind: TransportUnix, SocketPath: "/tmp/a.sock"}, "unix:///tmp/a.sock"},
		{Transport{Kind: TransportTCP, Host: "127.0.0.1", Port: 9000}, "tcp://127.0.0.1:9000"},
		{Transport{Kind: TransportVsock, CID: 3, Port: 1024}, "vsock://3:1024"},
	}
	for _, c := range cases {
		if got := c.t.URI(); got != c.want {
			t.Errorf("URI() = %q, want %q", got, c.want)
		}
	}
}
