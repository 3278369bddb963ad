package grpcapi

import (
	"context"

	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls waveportal.v1.WaveService.
type Client struct {
	cc    grpc.ClientConnInterface
	token string
}

// NewClient wraps cc. token may be empty for read-only use.
func NewClient(cc grpc.ClientConnInterface, token string) *Client {
	return &Client{cc: cc, token: token}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// Wave appends a wave as the token's address.
func (c *Client) Wave(ctx context.Context, message string) (waveledger.Record, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(c.outgoing(ctx), MethodWave, wrapperspb.String(message), out); err != nil {
		return waveledger.Record{}, err
	}
	return RecordFromStruct(out)
}

// GetAllWaves returns every wave in append order.
func (c *Client) GetAllWaves(ctx context.Context) ([]waveledger.Record, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(c.outgoing(ctx), MethodGetAllWaves, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	records := make([]waveledger.Record, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		r, err := RecordFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// GetTotalWaves returns the number of waves.
func (c *Client) GetTotalWaves(ctx context.Context) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(c.outgoing(ctx), MethodGetTotalWaves, &emptypb.Empty{}, out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// SetApproveMessage sets the approval flag of the wave at index.
func (c *Client) SetApproveMessage(ctx context.Context, index int, approved bool) error {
	return c.cc.Invoke(c.outgoing(ctx), MethodSetApproveMessage, ApprovalRequest(index, approved), new(emptypb.Empty))
}

// Subscribe opens a NewWave stream. Cancel ctx to unsubscribe.
func (c *Client) Subscribe(ctx context.Context) (<-chan events.NewWave, <-chan error, error) {
	stream, err := c.cc.NewStream(c.outgoing(ctx), &WaveService_ServiceDesc.Streams[0], MethodSubscribe)
	if err != nil {
		return nil, nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, err
	}

	out := make(chan events.NewWave)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				errc <- err
				return
			}
			ev, err := EventFromStruct(msg)
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return out, errc, nil
}
