package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// The three service descriptors below are hand-authored in place of
// protoc-gen-go-grpc output: no .proto file is compiled anywhere in this
// tree. Each Handler follows the exact decode → (interceptor) → invoke
// shape generated stubs use, so the services still ride real gRPC
// transport, deadlines, and streaming — only the code-generation step is
// skipped, with jsonCodec (codec.go) standing in for protobuf wire
// encoding.

// ---- Guest service (spec §4.9) ----

type GuestServer interface {
	Init(ctx context.Context, req *GuestInitRequest) (*GuestInitResponse, error)
	Ping(ctx context.Context, req *Empty) (*Empty, error)
	Shutdown(ctx context.Context, req *Empty) (*Empty, error)
}

type GuestClient interface {
	Init(ctx context.Context, req *GuestInitRequest, opts ...grpc.CallOption) (*GuestInitResponse, error)
	Ping(ctx context.Context, req *Empty, opts ...grpc.CallOption) (*Empty, error)
	Shutdown(ctx context.Context, req *Empty, opts ...grpc.CallOption) (*Empty, error)
}

type guestClient struct{ cc *grpc.ClientConn }

func NewGuestClient(cc *grpc.ClientConn) GuestClient { return &guestClient{cc} }

func (c *guestClient) Init(ctx context.Context, req *GuestInitRequest, opts ...grpc.CallOption) (*GuestInitResponse, error) {
	out := new(GuestInitResponse)
	if err := c.cc.Invoke(ctx, "/boxlite.Guest/Init", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *guestClient) Ping(ctx context.Context, req *Empty, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/boxlite.Guest/Ping", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *guestClient) Shutdown(ctx context.Context, req *Empty, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/boxlite.Guest/Shutdown", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func guestInitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GuestInitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuestServer).Init(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Guest/Init"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GuestServer).Init(ctx, req.(*GuestInitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func guestPingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuestServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Guest/Ping"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GuestServer).Ping(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func guestShutdownHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GuestServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Guest/Shutdown"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GuestServer).Shutdown(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var GuestServiceDesc = grpc.ServiceDesc{
	ServiceName: "boxlite.Guest",
	HandlerType: (*GuestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Init", Handler: guestInitHandler},
		{MethodName: "Ping", Handler: guestPingHandler},
		{MethodName: "Shutdown", Handler: guestShutdownHandler},
	},
}

func RegisterGuestServer(s *grpc.Server, srv GuestServer) {
	s.RegisterService(&GuestServiceDesc, srv)
}

// ---- Container service (spec §4.9) ----

type ContainerServer interface {
	Init(ctx context.Context, req *ContainerInitRequest) (*Empty, error)
	Destroy(ctx context.Context, req *ContainerStatusRequest) (*Empty, error)
	Status(ctx context.Context, req *ContainerStatusRequest) (*ContainerStatusResponse, error)
}

type ContainerClient interface {
	Init(ctx context.Context, req *ContainerInitRequest, opts ...grpc.CallOption) (*Empty, error)
	Destroy(ctx context.Context, req *ContainerStatusRequest, opts ...grpc.CallOption) (*Empty, error)
	Status(ctx context.Context, req *ContainerStatusRequest, opts ...grpc.CallOption) (*ContainerStatusResponse, error)
}

type containerClient struct{ cc *grpc.ClientConn }

func NewContainerClient(cc *grpc.ClientConn) ContainerClient { return &containerClient{cc} }

func (c *containerClient) Init(ctx context.Context, req *ContainerInitRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/boxlite.Container/Init", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *containerClient) Destroy(ctx context.Context, req *ContainerStatusRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/boxlite.Container/Destroy", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *containerClient) Status(ctx context.Context, req *ContainerStatusRequest, opts ...grpc.CallOption) (*ContainerStatusResponse, error) {
	out := new(ContainerStatusResponse)
	if err := c.cc.Invoke(ctx, "/boxlite.Container/Status", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func containerInitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ContainerInitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ContainerServer).Init(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Container/Init"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ContainerServer).Init(ctx, req.(*ContainerInitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func containerDestroyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ContainerStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ContainerServer).Destroy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Container/Destroy"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ContainerServer).Destroy(ctx, req.(*ContainerStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func containerStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ContainerStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ContainerServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Container/Status"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ContainerServer).Status(ctx, req.(*ContainerStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ContainerServiceDesc = grpc.ServiceDesc{
	ServiceName: "boxlite.Container",
	HandlerType: (*ContainerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Init", Handler: containerInitHandler},
		{MethodName: "Destroy", Handler: containerDestroyHandler},
		{MethodName: "Status", Handler: containerStatusHandler},
	},
}

func RegisterContainerServer(s *grpc.Server, srv ContainerServer) {
	s.RegisterService(&ContainerServiceDesc, srv)
}

// ---- Execution service (spec §4.9) ----

type ExecutionServer interface {
	Exec(ctx context.Context, req *ExecRequest) (*ExecResponse, error)
	Attach(req *AttachRequest, stream Execution_AttachServer) error
	SendInput(stream Execution_SendInputServer) error
	Wait(ctx context.Context, req *WaitRequest) (*WaitResponse, error)
	Kill(ctx context.Context, req *KillRequest) (*KillResponse, error)
	ResizeTty(ctx context.Context, req *ResizeTtyRequest) (*Empty, error)
}

type Execution_AttachServer interface {
	Send(*ExecOutput) error
	grpc.ServerStream
}

type executionAttachServer struct{ grpc.ServerStream }

func (x *executionAttachServer) Send(m *ExecOutput) error {
	return x.ServerStream.SendMsg(m)
}

type Execution_SendInputServer interface {
	Recv() (*ExecStdin, error)
	SendAndClose(*Empty) error
	grpc.ServerStream
}

type executionSendInputServer struct{ grpc.ServerStream }

func (x *executionSendInputServer) Recv() (*ExecStdin, error) {
	m := new(ExecStdin)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *executionSendInputServer) SendAndClose(m *Empty) error {
	return x.ServerStream.SendMsg(m)
}

type ExecutionClient interface {
	Exec(ctx context.Context, req *ExecRequest, opts ...grpc.CallOption) (*ExecResponse, error)
	Attach(ctx context.Context, req *AttachRequest, opts ...grpc.CallOption) (Execution_AttachClient, error)
	SendInput(ctx context.Context, opts ...grpc.CallOption) (Execution_SendInputClient, error)
	Wait(ctx context.Context, req *WaitRequest, opts ...grpc.CallOption) (*WaitResponse, error)
	Kill(ctx context.Context, req *KillRequest, opts ...grpc.CallOption) (*KillResponse, error)
	ResizeTty(ctx context.Context, req *ResizeTtyRequest, opts ...grpc.CallOption) (*Empty, error)
}

type Execution_AttachClient interface {
	Recv() (*ExecOutput, error)
	grpc.ClientStream
}

type executionAttachClient struct{ grpc.ClientStream }

func (x *executionAttachClient) Recv() (*ExecOutput, error) {
	m := new(ExecOutput)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type Execution_SendInputClient interface {
	Send(*ExecStdin) error
	CloseAndRecv() (*Empty, error)
	grpc.ClientStream
}

type executionSendInputClient struct{ grpc.ClientStream }

func (x *executionSendInputClient) Send(m *ExecStdin) error {
	return x.ClientStream.SendMsg(m)
}

func (x *executionSendInputClient) CloseAndRecv() (*Empty, error) {
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(Empty)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type executionClient struct{ cc *grpc.ClientConn }

func NewExecutionClient(cc *grpc.ClientConn) ExecutionClient { return &executionClient{cc} }

func (c *executionClient) Exec(ctx context.Context, req *ExecRequest, opts ...grpc.CallOption) (*ExecResponse, error) {
	out := new(ExecResponse)
	if err := c.cc.Invoke(ctx, "/boxlite.Execution/Exec", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *executionClient) Attach(ctx context.Context, req *AttachRequest, opts ...grpc.CallOption) (Execution_AttachClient, error) {
	stream, err := c.cc.NewStream(ctx, &ExecutionServiceDesc.Streams[0], "/boxlite.Execution/Attach", opts...)
	if err != nil {
		return nil, err
	}
	x := &executionAttachClient{stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *executionClient) SendInput(ctx context.Context, opts ...grpc.CallOption) (Execution_SendInputClient, error) {
	stream, err := c.cc.NewStream(ctx, &ExecutionServiceDesc.Streams[1], "/boxlite.Execution/SendInput", opts...)
	if err != nil {
		return nil, err
	}
	return &executionSendInputClient{stream}, nil
}

func (c *executionClient) Wait(ctx context.Context, req *WaitRequest, opts ...grpc.CallOption) (*WaitResponse, error) {
	out := new(WaitResponse)
	if err := c.cc.Invoke(ctx, "/boxlite.Execution/Wait", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *executionClient) Kill(ctx context.Context, req *KillRequest, opts ...grpc.CallOption) (*KillResponse, error) {
	out := new(KillResponse)
	if err := c.cc.Invoke(ctx, "/boxlite.Execution/Kill", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *executionClient) ResizeTty(ctx context.Context, req *ResizeTtyRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/boxlite.Execution/ResizeTty", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func executionExecHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExecRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutionServer).Exec(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Execution/Exec"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutionServer).Exec(ctx, req.(*ExecRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executionAttachHandler(srv any, stream grpc.ServerStream) error {
	m := new(AttachRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ExecutionServer).Attach(m, &executionAttachServer{stream})
}

func executionSendInputHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ExecutionServer).SendInput(&executionSendInputServer{stream})
}

func executionWaitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(WaitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutionServer).Wait(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Execution/Wait"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutionServer).Wait(ctx, req.(*WaitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executionKillHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(KillRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutionServer).Kill(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Execution/Kill"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutionServer).Kill(ctx, req.(*KillRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executionResizeTtyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResizeTtyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutionServer).ResizeTty(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/boxlite.Execution/ResizeTty"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutionServer).ResizeTty(ctx, req.(*ResizeTtyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ExecutionServiceDesc = grpc.ServiceDesc{
	ServiceName: "boxlite.Execution",
	HandlerType: (*ExecutionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exec", Handler: executionExecHandler},
		{MethodName: "Wait", Handler: executionWaitHandler},
		{MethodName: "Kill", Handler: executionKillHandler},
		{MethodName: "ResizeTty", Handler: executionResizeTtyHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Attach", Handler: executionAttachHandler, ServerStreams: true},
		{StreamName: "SendInput", Handler: executionSendInputHandler, ClientStreams: true},
	},
}

func RegisterExecutionServer(s *grpc.Server, srv ExecutionServer) {
	s.RegisterService(&ExecutionServiceDesc, srv)
}
