package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/events"
	"github.com/davidbalbert/ospfd/logger"
	"github.com/davidbalbert/ospfd/ospf"
	"github.com/davidbalbert/ospfd/services"
	"github.com/davidbalbert/ospfd/sync"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ospfService interface {
	InterfaceStatus(ctx context.Context) ([]ospf.InterfaceStatus, error)
	Events() *sync.QueuedNotifier[events.Event]
}

// Server answers queries about the running daemon on a unix socket.
type Server struct {
	services func() []config.ServiceID
	lookup   func() (ospfService, error)
	shutdown context.CancelFunc
	socket   string
	version  string
}

func NewServer(serviceManager *services.ServiceManager, socket string, shutdown context.CancelFunc, version string) *Server {
	lookup := func() (ospfService, error) {
		s, err := serviceManager.Get(config.ServiceOSPF)
		if err != nil {
			return nil, err
		}

		o, ok := s.(ospfService)
		if !ok {
			return nil, fmt.Errorf("expected *ospf.Instance but got %T", s)
		}

		return o, nil
	}

	return newServer(serviceManager.RunningServices, lookup, socket, shutdown, version)
}

func newServer(services func() []config.ServiceID, lookup func() (ospfService, error), socket string, shutdown context.CancelFunc, version string) *Server {
	return &Server{
		services: services,
		lookup:   lookup,
		shutdown: shutdown,
		socket:   socket,
		version:  version,
	}
}

func (s *Server) Run(ctx context.Context) error {
	// Left behind if we didn't exit cleanly.
	if err := os.Remove(s.socket); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	listener, err := net.Listen("unix", s.socket)
	if err != nil {
		return err
	}

	logger.Infof("api server listening on %s", s.socket)

	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&serviceDesc, s)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return grpcServer.Serve(listener)
	})

	g.Go(func() error {
		<-ctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}

func (s *Server) GetVersion(ctx context.Context) (string, error) {
	return s.version, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown()
	return nil
}

func (s *Server) GetServices(ctx context.Context) ([]config.ServiceID, error) {
	return s.services(), nil
}

func (s *Server) GetInterfaces(ctx context.Context) ([]ospf.InterfaceStatus, error) {
	o, err := s.lookup()
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	interfaces, err := o.InterfaceStatus(ctx)
	if errors.Is(err, ospf.ErrNotRunning) {
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	return interfaces, err
}

// Events sends every event published by the OSPF instance until ctx is
// done. Events from before the call are not sent.
func (s *Server) Events(ctx context.Context, send func(events.Event) error) error {
	o, err := s.lookup()
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}

	n := o.Events()
	tok := n.Register()
	defer n.Unregister(tok)

	for {
		e, ok := n.AwaitChange(ctx, tok)
		if !ok {
			return nil
		}

		if err := send(e); err != nil {
			return err
		}
	}
}
