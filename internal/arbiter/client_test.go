package arbiter

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

// packetService is the server side of packet.PacketService used by the
// in-process controller below.
type packetService interface {
	sendPacket(context.Context, *Packet) (*PacketAck, error)
}

type fakeController struct {
	mu      sync.Mutex
	decide  func(*Packet) (*PacketAck, error)
	infos   []*ValidatorNodeInfo
	network *NetworkConfig
}

func (f *fakeController) sendPacket(_ context.Context, p *Packet) (*PacketAck, error) {
	return f.decide(p)
}

var fakeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*packetService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendPacket",
			Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := &Packet{}
				if err := dec(in); err != nil {
					return nil, err
				}
				return srv.(packetService).sendPacket(ctx, in)
			},
		},
		{
			MethodName: "GetConfig",
			Handler: func(srv any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				if err := dec(&GetConfigRequest{}); err != nil {
					return nil, err
				}
				return srv.(*fakeController).network, nil
			},
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SendValidatorNodeInfo",
			ClientStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				f := srv.(*fakeController)
				for {
					info := &ValidatorNodeInfo{}
					err := stream.RecvMsg(info)
					if errors.Is(err, io.EOF) {
						return stream.SendMsg(&ValidatorNodeInfoAck{Status: "Received validator node info"})
					}
					if err != nil {
						return err
					}
					f.mu.Lock()
					f.infos = append(f.infos, info)
					f.mu.Unlock()
				}
			},
		},
	},
}

func startController(t *testing.T, f *fakeController) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(wireCodec{}))
	srv.RegisterService(&fakeServiceDesc, f)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cfg := DefaultClientConfig()
	cfg.Address = "passthrough:///bufnet"
	cfg.Timeout = time.Second

	client, err := NewClient(cfg, zaptest.NewLogger(t),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// TestClient_Decide tests the SendPacket round trip for every action
func TestClient_Decide(t *testing.T) {
	f := &fakeController{decide: func(p *Packet) (*PacketAck, error) {
		switch p.FromPort {
		case 60000:
			return &PacketAck{Action: uint32(ActionForward)}, nil
		case 60001:
			return &PacketAck{Action: uint32(ActionMutate), Data: append([]byte("x"), p.Data...)}, nil
		case 60002:
			return &PacketAck{Action: uint32(ActionDrop)}, nil
		default:
			return &PacketAck{Action: 42}, nil
		}
	}}
	client := startController(t, f)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		from    uint32
		action  Action
		payload []byte
	}{
		{60000, ActionForward, nil},
		{60001, ActionMutate, append([]byte("x"), payload...)},
		{60002, ActionDrop, nil},
		{60003, ActionForward, nil},
	}

	for _, tt := range tests {
		d, err := client.Decide(context.Background(), Request{Payload: payload, SourcePort: tt.from, DestPort: 60004})
		require.NoError(t, err)
		assert.Equal(t, tt.action, d.Action, "from %d", tt.from)
		assert.Equal(t, tt.payload, d.Payload)
	}
}

// TestClient_Decide_InvalidRequest tests client-side checks before the RPC
func TestClient_Decide_InvalidRequest(t *testing.T) {
	f := &fakeController{decide: func(*Packet) (*PacketAck, error) {
		assert.Fail(t, "controller must not be called")
		return &PacketAck{}, nil
	}}
	client := startController(t, f)

	_, err := client.Decide(context.Background(), Request{SourcePort: 2, DestPort: 3})
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = client.Decide(context.Background(), Request{Payload: []byte{1}, SourcePort: math.MaxUint32, DestPort: 3})
	assert.ErrorIs(t, err, ErrPortNotSet)

	_, err = client.Decide(context.Background(), Request{Payload: []byte{1}, SourcePort: 2, DestPort: math.MaxUint32})
	assert.ErrorIs(t, err, ErrPortNotSet)
}

func TestClient_Decide_ControllerErrors(t *testing.T) {
	f := &fakeController{decide: func(p *Packet) (*PacketAck, error) {
		if p.FromPort == 1 {
			return nil, status.Error(codes.Unavailable, "restarting")
		}
		return nil, status.Error(codes.InvalidArgument, "bad packet")
	}}
	client := startController(t, f)

	_, err := client.Decide(context.Background(), Request{Payload: []byte{1}, SourcePort: 1, DestPort: 2})
	assert.ErrorIs(t, err, ErrControllerUnavailable)

	_, err = client.Decide(context.Background(), Request{Payload: []byte{1}, SourcePort: 2, DestPort: 1})
	var ce *ControllerError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, codes.InvalidArgument, ce.Code)
	assert.Equal(t, "SendPacket", ce.Method)
}

func TestClient_Decide_Timeout(t *testing.T) {
	f := &fakeController{decide: func(*Packet) (*PacketAck, error) {
		time.Sleep(500 * time.Millisecond)
		return &PacketAck{}, nil
	}}
	client := startController(t, f)
	client.cfg.Timeout = 50 * time.Millisecond

	_, err := client.Decide(context.Background(), Request{Payload: []byte{1}, SourcePort: 1, DestPort: 2})
	assert.ErrorIs(t, err, ErrControllerUnavailable)
}

// TestClient_Decide_Concurrent tests that many relay loops can share one client
func TestClient_Decide_Concurrent(t *testing.T) {
	f := &fakeController{decide: func(p *Packet) (*PacketAck, error) {
		return &PacketAck{Action: uint32(ActionMutate), Data: p.Data}, nil
	}}
	client := startController(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte{byte(i), 0xAA}
			d, err := client.Decide(context.Background(), Request{Payload: payload, SourcePort: uint32(i), DestPort: 1})
			assert.NoError(t, err)
			assert.Equal(t, payload, d.Payload)
		}(i)
	}
	wg.Wait()
}

func TestClient_SendValidatorNodeInfo(t *testing.T) {
	f := &fakeController{}
	client := startController(t, f)

	nodes := []topology.ValidatorNode{
		{Index: 0, PeerPort: 60000, RPCPort: 63000, Status: "active", PublicKey: "n9KjTKEaHJ12Kuon5PDZ7fQAo5ExZ6cKH4h3L8q6m9YhoYqeBDho"},
		{Index: 1, PeerPort: 60001, RPCPort: 63001, Status: "active", PublicKey: "n9other"},
	}

	st, err := client.SendValidatorNodeInfo(context.Background(), nodes)
	require.NoError(t, err)
	assert.Equal(t, "Received validator node info", st)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.infos, 2)
	assert.Equal(t, uint32(60001), f.infos[1].PeerPort)
	assert.Equal(t, nodes[0].PublicKey, f.infos[0].ValidationPublicKey)
}

func TestClient_GetConfig(t *testing.T) {
	f := &fakeController{network: &NetworkConfig{
		BasePortPeer:    60000,
		BasePortWS:      61000,
		BasePortWSAdmin: 62000,
		BasePortRPC:     63000,
		NumberOfNodes:   3,
		Partitions:      []*Partition{{Nodes: []uint32{0, 1, 2}}},
	}}
	client := startController(t, f)

	network, err := client.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, topology.Network{
		BasePortPeer:    60000,
		BasePortWS:      61000,
		BasePortWSAdmin: 62000,
		BasePortRPC:     63000,
		NumberOfNodes:   3,
		Partitions:      [][]uint32{{0, 1, 2}},
	}, network)
}

func TestPassthrough(t *testing.T) {
	d, err := Passthrough{}.Decide(context.Background(), Request{Payload: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, ActionForward, d.Action)
	assert.Equal(t, []byte("abc"), d.Payload)
}

func TestParseAction(t *testing.T) {
	for _, a := range []Action{ActionForward, ActionMutate, ActionDrop} {
		parsed, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	_, err := ParseAction("delay")
	assert.Error(t, err)
	assert.Equal(t, "action(9)", Action(9).String())
}

func TestClientConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultClientConfig().Validate())

	cfg := DefaultClientConfig()
	cfg.Address = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultClientConfig()
	cfg.Address = "no-port"
	assert.Error(t, cfg.Validate())

	cfg = DefaultClientConfig()
	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())
}
