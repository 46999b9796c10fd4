package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/linuxkit/virtsock/pkg/vsock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/boxlite/boxlite/internal/boxerr"
	"github.com/boxlite/boxlite/types"
)

// dialTransport opens a net.Conn for one Transport, independent of which
// concrete kind it names (spec §6 "Transport URIs").
func dialTransport(ctx context.Context, t types.Transport) (net.Conn, error) {
	switch t.Kind {
	case types.TransportUnix:
		var d net.Dialer
		return d.DialContext(ctx, "unix", t.SocketPath)
	case types.TransportTCP:
		var d net.Dialer
		return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", t.Host, t.Port))
	case types.TransportVsock:
		return vsock.Dial(t.CID, uint32(t.Port)) //nolint:gosec
	default:
		return nil, boxerr.Newf(boxerr.Config, "unsupported transport kind %v", t.Kind)
	}
}

// Dial opens a grpc.ClientConn addressing t, using jsonCodec in place of
// protobuf for every call on the connection.
func Dial(ctx context.Context, t types.Transport) (*grpc.ClientConn, error) {
	// "passthrough:///" sidesteps gRPC's scheme-based resolver lookup: the
	// address that follows is never parsed, since dialTransport ignores
	// whatever string NewClient passes it and always dials t directly.
	conn, err := grpc.NewClient(
		"passthrough:///"+t.URI(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(dialCtx context.Context, _ string) (net.Conn, error) {
			return dialTransport(dialCtx, t)
		}),
	)
	if err != nil {
		return nil, boxerr.Wrapf(boxerr.Network, err, "dial %s", t.URI())
	}
	return conn, nil
}

// Listen binds a net.Listener for t, for a guestserver to serve on.
func Listen(t types.Transport) (net.Listener, error) {
	switch t.Kind {
	case types.TransportUnix:
		ln, err := net.Listen("unix", t.SocketPath)
		if err != nil {
			return nil, boxerr.Wrapf(boxerr.Network, err, "listen on %s", t.SocketPath)
		}
		return ln, nil
	case types.TransportTCP:
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", t.Host, t.Port))
		if err != nil {
			return nil, boxerr.Wrapf(boxerr.Network, err, "listen on %s:%d", t.Host, t.Port)
		}
		return ln, nil
	case types.TransportVsock:
		ln, err := vsock.Listen(t.CID, uint32(t.Port)) //nolint:gosec
		if err != nil {
			return nil, boxerr.Wrapf(boxerr.Network, err, "listen on vsock %d:%d", t.CID, t.Port)
		}
		return ln, nil
	default:
		return nil, boxerr.Newf(boxerr.Config, "unsupported transport kind %v", t.Kind)
	}
}
