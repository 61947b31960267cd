package arbiter

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/LeJamon/xrpl-interceptor/internal/topology"
)

const (
	serviceName = "packet.PacketService"

	methodSendPacket            = "/" + serviceName + "/SendPacket"
	methodSendValidatorNodeInfo = "/" + serviceName + "/SendValidatorNodeInfo"
	methodGetConfig             = "/" + serviceName + "/GetConfig"
)

var validatorNodeInfoStream = grpc.StreamDesc{
	StreamName:    "SendValidatorNodeInfo",
	ClientStreams: true,
}

// Client is the controller's gRPC client. A single Client is shared by every
// relay loop; the underlying ClientConn multiplexes concurrent calls.
type Client struct {
	conn   *grpc.ClientConn
	cfg    ClientConfig
	logger *zap.Logger
}

var _ Arbiter = (*Client)(nil)

// NewClient creates a client for the controller at cfg.Address. The
// connection is established lazily on the first call.
func NewClient(cfg ClientConfig, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid controller config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(wireCodec{}),
			grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize),
		),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrControllerUnavailable, err)
	}

	return &Client{conn: conn, cfg: cfg, logger: logger}, nil
}

// Decide sends an intercepted message to the controller and returns its
// decision.
func (c *Client) Decide(ctx context.Context, req Request) (Decision, error) {
	if len(req.Payload) == 0 {
		return Decision{}, ErrEmptyPayload
	}
	if req.SourcePort == math.MaxUint32 {
		return Decision{}, fmt.Errorf("source %w", ErrPortNotSet)
	}
	if req.DestPort == math.MaxUint32 {
		return Decision{}, fmt.Errorf("destination %w", ErrPortNotSet)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ack := &PacketAck{}
	packet := &Packet{Data: req.Payload, FromPort: req.SourcePort, ToPort: req.DestPort}
	if err := c.conn.Invoke(ctx, methodSendPacket, packet, ack); err != nil {
		return Decision{}, classify("SendPacket", err)
	}

	action := Action(ack.Action)
	switch action {
	case ActionForward, ActionMutate, ActionDrop:
	default:
		c.logger.Warn("unknown controller action, forwarding",
			zap.Uint32("action", ack.Action))
		action = ActionForward
	}

	if ce := c.logger.Check(zap.DebugLevel, "controller decision"); ce != nil {
		ce.Write(
			zap.Stringer("action", action),
			zap.Uint32("from_port", req.SourcePort),
			zap.Uint32("to_port", req.DestPort),
			zap.String("original_data", hex.EncodeToString(req.Payload)),
			zap.String("possibly_mutated_data", hex.EncodeToString(ack.Data)),
		)
	}

	return Decision{Action: action, Payload: ack.Data}, nil
}

// SendValidatorNodeInfo streams the node descriptors to the controller and
// returns its acknowledgement status.
func (c *Client) SendValidatorNodeInfo(ctx context.Context, nodes []topology.ValidatorNode) (string, error) {
	stream, err := c.conn.NewStream(ctx, &validatorNodeInfoStream, methodSendValidatorNodeInfo)
	if err != nil {
		return "", classify("SendValidatorNodeInfo", err)
	}

	for _, n := range nodes {
		if err := stream.SendMsg(nodeInfo(n)); err != nil {
			if errors.Is(err, io.EOF) {
				// The server ended the stream; the real status comes from RecvMsg.
				break
			}
			return "", classify("SendValidatorNodeInfo", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return "", classify("SendValidatorNodeInfo", err)
	}

	ack := &ValidatorNodeInfoAck{}
	if err := stream.RecvMsg(ack); err != nil {
		return "", classify("SendValidatorNodeInfo", err)
	}

	c.logger.Info("announced validator nodes",
		zap.Int("nodes", len(nodes)),
		zap.String("status", ack.Status))
	return ack.Status, nil
}

// GetConfig asks the controller for the network description.
func (c *Client) GetConfig(ctx context.Context) (topology.Network, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp := &NetworkConfig{}
	if err := c.conn.Invoke(ctx, methodGetConfig, &GetConfigRequest{}, resp); err != nil {
		return topology.Network{}, classify("GetConfig", err)
	}

	network := topology.Network{
		BasePortPeer:    resp.BasePortPeer,
		BasePortWS:      resp.BasePortWS,
		BasePortWSAdmin: resp.BasePortWSAdmin,
		BasePortRPC:     resp.BasePortRPC,
		NumberOfNodes:   resp.NumberOfNodes,
	}
	for _, p := range resp.Partitions {
		network.Partitions = append(network.Partitions, p.Nodes)
	}

	c.logger.Info("fetched network config",
		zap.Uint32("nodes", network.NumberOfNodes),
		zap.Uint32("base_port_peer", network.BasePortPeer),
		zap.Int("partitions", len(network.Partitions)))
	return network, nil
}

// Close closes the connection to the controller.
func (c *Client) Close() error {
	return c.conn.Close()
}

func nodeInfo(n topology.ValidatorNode) *ValidatorNodeInfo {
	return &ValidatorNodeInfo{
		PeerPort:             uint32(n.PeerPort),
		WSPublicPort:         uint32(n.WSPublicPort),
		WSAdminPort:          uint32(n.WSAdminPort),
		RPCPort:              uint32(n.RPCPort),
		Status:               n.Status,
		ValidationKey:        n.ValidationKey,
		ValidationPrivateKey: n.ValidationPrivateKey,
		ValidationPublicKey:  n.PublicKey,
		ValidationSeed:       n.ValidationSeed,
	}
}

// classify maps transport-level failures to ErrControllerUnavailable and
// everything else to a ControllerError.
func classify(method string, err error) error {
	code := status.Code(err)
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s: %v", ErrControllerUnavailable, method, err)
	}
	return &ControllerError{Method: method, Code: code, Err: err}
}
