package app

import (
	"context"

	"github.com/grindlemire/graft"

	"go.trai.ch/knit/internal/adapters/bundler"            //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/cas"                //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/config"             //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/fs"                 //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/linear"             //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/logger"             //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/resolver"           //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/telemetry"          //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/transformer"        //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/adapters/watcher"            //nolint:depguard // Wired in app layer
	"go.trai.ch/knit/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			cas.NodeID,
			telemetry.NodeID,
			fs.HasherNodeID,
			fs.WalkerNodeID,
			resolver.NodeID,
			transformer.NodeID,
			bundler.PackagerNodeID,
			bundler.NodeID,
			linear.NodeID,
			progrock.NodeID,
			watcher.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return &Components{App: app, Logger: log}, nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	caches, err := graft.Dep[*cas.Opener](ctx)
	if err != nil {
		return nil, err
	}
	traces, err := graft.Dep[ports.TraceFactory](ctx)
	if err != nil {
		return nil, err
	}
	hasher, err := graft.Dep[ports.Hasher](ctx)
	if err != nil {
		return nil, err
	}
	walker, err := graft.Dep[*fs.Walker](ctx)
	if err != nil {
		return nil, err
	}
	res, err := graft.Dep[ports.Resolver](ctx)
	if err != nil {
		return nil, err
	}
	pipeline, err := graft.Dep[*transformer.Pipeline](ctx)
	if err != nil {
		return nil, err
	}
	packager, err := graft.Dep[ports.Packager](ctx)
	if err != nil {
		return nil, err
	}
	bundlers, err := graft.Dep[[]ports.Bundler](ctx)
	if err != nil {
		return nil, err
	}
	lines, err := graft.Dep[*linear.Reporter](ctx)
	if err != nil {
		return nil, err
	}
	tape, err := graft.Dep[*progrock.Recorder](ctx)
	if err != nil {
		return nil, err
	}
	watchers, err := graft.Dep[*watcher.Factory](ctx)
	if err != nil {
		return nil, err
	}

	return New(Adapters{
		Loader:    loader,
		Logger:    log,
		Caches:    caches,
		Traces:    traces,
		Hasher:    hasher,
		Walker:    walker,
		Resolver:  res,
		Pipeline:  pipeline,
		Packager:  packager,
		Bundlers:  bundlers,
		Reporters: []ports.Reporter{lines, tape},
		Watchers:  watchers,
	}), nil
}
