package api

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type Client struct {
	*grpc.ClientConn
}

func NewClient(socketPath string) (*Client, error) {
	conn, err := grpc.Dial("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	return &Client{ClientConn: conn}, nil
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	resp := &wrapperspb.StringValue{}
	if err := c.Invoke(ctx, fullMethod("GetVersion"), &emptypb.Empty{}, resp); err != nil {
		return "", err
	}

	return resp.GetValue(), nil
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.Invoke(ctx, fullMethod("Shutdown"), &emptypb.Empty{}, &emptypb.Empty{})
}

func (c *Client) GetServices(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, "GetServices", &names); err != nil {
		return nil, err
	}

	return names, nil
}

func (c *Client) GetInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var interfaces []InterfaceInfo
	if err := c.call(ctx, "GetInterfaces", &interfaces); err != nil {
		return nil, err
	}

	return interfaces, nil
}

// Events calls fn with every event the daemon publishes until ctx is done,
// fn returns an error, or the daemon goes away.
func (c *Client) Events(ctx context.Context, fn func(EventInfo) error) error {
	stream, err := c.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Events"))
	if err != nil {
		return err
	}

	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}

	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		v := &structpb.Value{}
		if err := stream.RecvMsg(v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var e EventInfo
		if err := fromValue(v, &e); err != nil {
			return err
		}

		if err := fn(e); err != nil {
			return err
		}
	}
}

func (c *Client) call(ctx context.Context, method string, out any) error {
	v := &structpb.Value{}
	if err := c.Invoke(ctx, fullMethod(method), &emptypb.Empty{}, v); err != nil {
		return err
	}

	return fromValue(v, out)
}
