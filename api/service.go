package api

import (
	"context"
	"encoding/json"

	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/events"
	"github.com/davidbalbert/ospfd/ospf"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Requests are all empty. Responses are well-known types: strings are
// StringValues, everything else is a JSON-shaped structpb.Value.

const serviceName = "ospfd.API"

type handler interface {
	GetVersion(ctx context.Context) (string, error)
	Shutdown(ctx context.Context) error
	GetServices(ctx context.Context) ([]config.ServiceID, error)
	GetInterfaces(ctx context.Context) ([]ospf.InterfaceStatus, error)
	Events(ctx context.Context, send func(events.Event) error) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*handler)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetVersion", func(ctx context.Context, h handler) (proto.Message, error) {
			v, err := h.GetVersion(ctx)
			if err != nil {
				return nil, err
			}
			return wrapperspb.String(v), nil
		}),
		unaryMethod("Shutdown", func(ctx context.Context, h handler) (proto.Message, error) {
			if err := h.Shutdown(ctx); err != nil {
				return nil, err
			}
			return &emptypb.Empty{}, nil
		}),
		unaryMethod("GetServices", func(ctx context.Context, h handler) (proto.Message, error) {
			ids, err := h.GetServices(ctx)
			if err != nil {
				return nil, err
			}

			names := make([]string, len(ids))
			for i, id := range ids {
				names[i] = id.Name
			}

			return toValue(names)
		}),
		unaryMethod("GetInterfaces", func(ctx context.Context, h handler) (proto.Message, error) {
			interfaces, err := h.GetInterfaces(ctx)
			if err != nil {
				return nil, err
			}

			infos := make([]InterfaceInfo, len(interfaces))
			for i, s := range interfaces {
				infos[i] = interfaceInfo(s)
			}

			return toValue(infos)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			Handler:       eventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ospfd/api",
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func unaryMethod(name string, call func(ctx context.Context, h handler) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(emptypb.Empty)
			if err := dec(in); err != nil {
				return nil, err
			}

			h := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(ctx, srv.(handler))
			}

			if interceptor == nil {
				return h(ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}

			return interceptor(ctx, in, info, h)
		},
	}
}

func eventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(handler).Events(stream.Context(), func(e events.Event) error {
		v, err := toValue(EventInfo{Type: string(e.Type), Data: e.Data})
		if err != nil {
			return err
		}

		return stream.SendMsg(v)
	})
}

func toValue(v any) (*structpb.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := &structpb.Value{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}

	return out, nil
}

func fromValue(v *structpb.Value, out any) error {
	b, err := protojson.Marshal(v)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, out)
}
