// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader reconciles tenant and client definitions from YAML files
// and cluster resources into the entity store.
package loader

import (
	"context"

	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"

	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// Loader runs the file and cluster sub-loaders in parallel. Either may be
// absent: outside a cluster only files are loaded, and a deployment without
// a resources directory relies on cluster resources alone.
type Loader struct {
	file    *FileLoader
	cluster *ClusterLoader
}

// New assembles the loader from the runtime configuration. resourcesPath may
// be empty to skip file loading.
func New(store *entities.Store, cfg *config.Config, resourcesPath string) *Loader {
	l := &Loader{}

	if resourcesPath != "" {
		l.file = NewFileLoader(store, resourcesPath, cfg.DisableFileMonitoring)
	}

	if restCfg, err := rest.InClusterConfig(); err == nil {
		dyn, err := dynamic.NewForConfig(restCfg)
		if err != nil {
			logger.Errorw("cannot create cluster client; cluster entities are not loaded", "error", err)
		} else {
			namespace := ""
			if cfg.ScopedCRD {
				namespace = cfg.Namespace
			}
			l.cluster = NewClusterLoader(store, dyn, namespace)
		}
	} else {
		logger.Debugw("not running in a cluster; cluster entities are not loaded", "reason", err)
	}

	return l
}

// Run blocks until ctx is done or a sub-loader fails.
func (l *Loader) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	if l.file != nil {
		group.Go(func() error { return l.file.Run(ctx) })
	}
	if l.cluster != nil {
		group.Go(func() error { return l.cluster.Run(ctx) })
	}
	return group.Wait()
}
