package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/VanDung-dev/HieraChain-Replica/api"
	"github.com/VanDung-dev/HieraChain-Replica/config"
	"github.com/VanDung-dev/HieraChain-Replica/engine"
	"github.com/VanDung-dev/HieraChain-Replica/feed"
	"github.com/VanDung-dev/HieraChain-Replica/network"
)

const metricsNamespace = "hierachain"

// formatFor picks the config encoding from the file extension.
func formatFor(path string) (config.Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return 0, fmt.Errorf("cannot infer config format of %q: no extension", path)
	}
	return config.ParseFormat(ext)
}

// prepareConfig loads the record, applies the command line overrides,
// validates it and freezes it.
func prepareConfig(o options) (*config.Node, error) {
	format, err := formatFor(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	node, err := config.Load(o.ConfigPath, format)
	if err != nil {
		return nil, err
	}

	if o.Delta.set {
		if err := node.SetRoundTimeout(o.Delta.d); err != nil {
			return nil, err
		}
	}
	if o.AddrFile != "" {
		addrs, err := config.ReadAddressFile(o.AddrFile)
		if err != nil {
			return nil, err
		}
		if err := node.ApplyAddresses(addrs); err != nil {
			return nil, err
		}
	}

	if err := node.Validate(); err != nil {
		return nil, err
	}
	node.Freeze()
	return node, nil
}

// replica owns every surface of one running replica process.
type replica struct {
	cfg     *config.Node
	opts    options
	log     *zap.Logger
	metrics *api.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	clients    *network.ClientFabric
	mesh       *network.Mesh
	feed       *feed.BlockFeed
	admin      *api.AdminServer
	metricsSrv *api.MetricsServer
	metricsLis net.Listener
	engine     engine.Engine
}

// startReplica binds every listener. Any bind failure aborts startup and
// releases what was already bound.
func startReplica(parent context.Context, cfg *config.Node, o options, log *zap.Logger) (_ *replica, err error) {
	if _, err = cfg.OwnListenAddress(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	r := &replica{
		cfg:     cfg,
		opts:    o,
		log:     log,
		metrics: api.NewMetrics(metricsNamespace),
		ctx:     ctx,
		cancel:  cancel,
	}
	defer func() {
		if err != nil {
			r.shutdown()
		}
	}()

	netOpts := []network.Option{
		network.WithLogger(log),
		network.WithMetrics(r.metrics),
	}

	r.clients, err = network.StartClientFabric(ctx, cfg.ClientListenAddress(), netOpts...)
	if err != nil {
		return nil, err
	}
	r.mesh, err = network.StartMesh(ctx, cfg.ID, cfg.NetMap, netOpts...)
	if err != nil {
		return nil, err
	}

	if o.FeedAddr != "" {
		r.feed, err = feed.NewBlockFeed(ctx, o.FeedAddr, log)
		if err != nil {
			return nil, err
		}
	}
	if o.AdminAddr != "" {
		r.admin = api.NewAdminServer()
		if err = r.admin.Listen(o.AdminAddr); err != nil {
			return nil, err
		}
	}
	if o.MetricsAddr != "" {
		r.metricsLis, err = net.Listen("tcp", o.MetricsAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", o.MetricsAddr, err)
		}
		r.metricsSrv = api.NewMetricsServer(o.MetricsAddr, r.metrics.Registry)
	}

	seqOpts := []engine.SequencerOption{
		engine.WithSequencerLogger(log.Named("engine")),
		engine.WithSequencerMetrics(r.metrics),
	}
	if r.feed != nil {
		seqOpts = append(seqOpts, engine.WithSink(r.feed))
	}
	r.engine = engine.NewSequencer(seqOpts...)

	return r, nil
}

func (r *replica) handles() engine.Handles {
	return engine.Handles{
		Config:     r.cfg,
		ClientMode: r.opts.ClientMode,
		ClientIn:   r.clients.Ingress(),
		ClientOut:  r.clients.Egress(),
		PeerIn:     r.mesh.Ingress(),
		PeerOut:    r.mesh.Egress(),
	}
}

// run serves until ctx is cancelled or a component fails, then shuts
// everything down.
func (r *replica) run() error {
	g, gctx := errgroup.WithContext(r.ctx)

	g.Go(func() error {
		return r.engine.Run(gctx, r.handles())
	})
	if r.admin != nil {
		g.Go(func() error {
			if err := r.admin.Serve(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		r.admin.SetServing(true)
	}
	if r.metricsSrv != nil {
		g.Go(func() error {
			if err := r.metricsSrv.Serve(r.metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		r.shutdown()
		return nil
	})

	r.log.Info("replica running",
		zap.Uint16("id", uint16(r.cfg.ID)),
		zap.Int("nodes", r.cfg.NumNodes),
		zap.Int("faults", r.cfg.NumFaults),
		zap.Stringer("client_addr", r.clients.Addr()),
		zap.Stringer("replica_addr", r.mesh.Addr()),
		zap.Duration("round_timeout", r.cfg.RoundTimeout))

	return g.Wait()
}

// shutdown stops every surface that was started. It is safe to call more
// than once.
func (r *replica) shutdown() {
	r.cancel()

	if r.admin != nil {
		r.admin.Stop()
	}
	if r.metricsSrv != nil {
		_ = r.metricsSrv.Stop()
	} else if r.metricsLis != nil {
		_ = r.metricsLis.Close()
	}
	if r.feed != nil {
		if err := r.feed.Close(); err != nil {
			r.log.Warn("failed to close block feed", zap.Error(err))
		}
	}
	if r.mesh != nil {
		_ = r.mesh.Close()
	}
	if r.clients != nil {
		_ = r.clients.Close()
	}
}
