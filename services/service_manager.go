package services

import (
	"context"
	"fmt"

	"github.com/davidbalbert/ospfd/config"
	"github.com/davidbalbert/ospfd/logger"
	"golang.org/x/sync/errgroup"
)

type Runner interface {
	Run(ctx context.Context) error
}

type BuilderFunc func(m *ServiceManager, conf any) (Runner, error)

// Builders maps service types to constructors. Callers register every
// service type before running a ServiceManager.
type Builders map[config.ServiceType]BuilderFunc

func (b Builders) Register(t config.ServiceType, fn BuilderFunc) error {
	_, ok := b[t]
	if ok {
		return fmt.Errorf("service type already registered: %v", t)
	}

	b[t] = fn

	return nil
}

func (b Builders) MustRegister(t config.ServiceType, fn BuilderFunc) {
	err := b.Register(t, fn)
	if err != nil {
		panic(err)
	}
}

type ServiceController struct {
	service Runner
	id      config.ServiceID
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func (c *ServiceController) Stop() {
	c.cancel()
}

func (c *ServiceController) Wait() error {
	<-c.done
	return c.err
}

type state struct {
	controllers map[string]*ServiceController
}

// A ServiceManager starts the services named by the running config, in
// dependency order, and restarts them all whenever the config changes.
type ServiceManager struct {
	st            chan state
	configManager *config.ConfigManager
	builders      Builders
}

func NewServiceManager(configManager *config.ConfigManager, builders Builders) *ServiceManager {
	st := state{
		controllers: make(map[string]*ServiceController),
	}

	c := make(chan state, 1)
	c <- st

	return &ServiceManager{
		st:            c,
		configManager: configManager,
		builders:      builders,
	}
}

func (s *ServiceManager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	confCh := make(chan *config.Config, 1)

	g.Go(func() error {
		conf, seq := s.configManager.LastChange()
		for {
			select {
			case <-ctx.Done():
				return nil
			case confCh <- conf:
			}

			conf, seq = s.configManager.AwaitChange(ctx, seq)
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case conf := <-confCh:
				st := <-s.st

				s.stopAll(st)

				for _, b := range conf.Bootstraps() {
					err := s.start(ctx, g, st, b)
					if err != nil {
						s.st <- st
						return err
					}
				}

				s.st <- st
			}
		}
	})

	return g.Wait()
}

// stopAll cancels every service, then waits for each to exit.
func (s *ServiceManager) stopAll(st state) {
	for _, controller := range st.controllers {
		controller.Stop()
	}

	for name, controller := range st.controllers {
		if err := controller.Wait(); err != nil {
			logger.Warnf("service %s exited with error: %v", name, err)
		}
		delete(st.controllers, name)
	}
}

func (s *ServiceManager) start(ctx context.Context, g *errgroup.Group, st state, b config.Bootstrap) error {
	_, ok := st.controllers[b.ID.Name]
	if ok {
		return fmt.Errorf("service already running: %s", b.ID.Name)
	}

	builder, ok := s.builders[b.ID.Type]
	if !ok {
		return fmt.Errorf("unknown service type: %v", b.ID.Type)
	}

	service, err := builder(s, b.Config)
	if err != nil {
		return fmt.Errorf("%s: %w", b.ID.Name, err)
	}

	ctx, cancel := context.WithCancel(ctx)

	controller := &ServiceController{
		service: service,
		id:      b.ID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	st.controllers[b.ID.Name] = controller

	logger.Infof("starting service: %s", b.ID.Name)

	g.Go(func() error {
		controller.err = service.Run(ctx)
		close(controller.done)
		return controller.err
	})

	return nil
}

func (s *ServiceManager) Get(id config.ServiceID) (any, error) {
	st := <-s.st
	defer func() {
		s.st <- st
	}()

	controller, ok := st.controllers[id.Name]
	if !ok {
		return nil, fmt.Errorf("service not running: %s", id.Name)
	}

	return controller.service, nil
}

func (s *ServiceManager) ConfigManager() *config.ConfigManager {
	return s.configManager
}

func (s *ServiceManager) RunningServices() []config.ServiceID {
	st := <-s.st
	defer func() {
		s.st <- st
	}()

	var ids []config.ServiceID

	for _, controller := range st.controllers {
		ids = append(ids, controller.id)
	}

	return ids
}
