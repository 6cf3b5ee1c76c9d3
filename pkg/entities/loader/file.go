// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"sigs.k8s.io/yaml"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// Directory names under the resources path that hold entity definitions.
const (
	tenantsDir = "Configurations/Tenants"
	clientsDir = "Configurations/Clients"
)

// fileDocument is the on-disk YAML shape shared by tenants and clients:
// a name plus a kind-specific spec.
type fileDocument struct {
	Name string `json:"name"`
}

type tenantDocument struct {
	fileDocument
	Spec entities.TenantSpec `json:"spec"`
}

type clientDocument struct {
	fileDocument
	Spec entities.ClientSpec `json:"spec"`
}

// FileLoader ingests tenants and clients from YAML files below a resources
// directory and keeps the store in sync while the files change.
type FileLoader struct {
	store         *entities.Store
	resourcesPath string

	// disableMonitoring loads once and skips the directory watch.
	disableMonitoring bool
}

// NewFileLoader creates a loader rooted at resourcesPath.
func NewFileLoader(store *entities.Store, resourcesPath string, disableMonitoring bool) *FileLoader {
	return &FileLoader{
		store:             store,
		resourcesPath:     resourcesPath,
		disableMonitoring: disableMonitoring,
	}
}

// Run performs the initial load and then watches for changes until ctx is
// done. The initial load never fails the loader; unparseable files are
// logged and skipped.
func (l *FileLoader) Run(ctx context.Context) error {
	l.loadAll()

	if l.disableMonitoring {
		logger.Warn("file monitoring is disabled; entity files are loaded once")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnw("directory watching unavailable; entity files are loaded once", "error", err)
		<-ctx.Done()
		return nil
	}
	defer watcher.Close()

	for _, dir := range []string{l.tenantsPath(), l.clientsPath()} {
		if err := watchRecursive(watcher, dir); err != nil {
			logger.Warnw("cannot watch entity directory", "dir", dir, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			l.handleFsEvent(watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("entity file watcher error", "error", err)
		}
	}
}

func (l *FileLoader) tenantsPath() string { return filepath.Join(l.resourcesPath, tenantsDir) }
func (l *FileLoader) clientsPath() string { return filepath.Join(l.resourcesPath, clientsDir) }

func (l *FileLoader) loadAll() {
	for _, path := range listYAMLFiles(l.tenantsPath()) {
		l.applyFile(path, entities.EventAdded)
	}
	for _, path := range listYAMLFiles(l.clientsPath()) {
		l.applyFile(path, entities.EventAdded)
	}
}

func (l *FileLoader) handleFsEvent(watcher *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := watchRecursive(watcher, ev.Name); err != nil {
				logger.Warnw("cannot watch new directory", "dir", ev.Name, "error", err)
			}
			for _, path := range listYAMLFiles(ev.Name) {
				l.applyFile(path, entities.EventAdded)
			}
			return
		}
		if isYAMLFile(ev.Name) {
			l.applyFile(ev.Name, entities.EventAdded)
		}
	case ev.Op.Has(fsnotify.Write):
		if isYAMLFile(ev.Name) {
			// A changed file replaces the prior definition from that path.
			l.applyFile(ev.Name, entities.EventModified)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if isYAMLFile(ev.Name) {
			l.store.ApplyEvent(entities.Event{
				Op:       entities.EventDeleted,
				Ref:      entities.FileRef(ev.Name),
				IsClient: l.isClientPath(ev.Name),
			})
		}
	}
}

func (l *FileLoader) isClientPath(path string) bool {
	rel, err := filepath.Rel(l.clientsPath(), path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func (l *FileLoader) applyFile(path string, op entities.EventOp) {
	raw, err := os.ReadFile(path) // #nosec G304 - path comes from the operator-provided resources directory
	if err != nil {
		logger.Errorw("cannot read entity file", "file", path, "error", err)
		return
	}

	ref := entities.FileRef(path)
	if l.isClientPath(path) {
		var doc clientDocument
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			logger.Errorw("cannot parse client file", "file", path, "error", err)
			return
		}
		client, err := entities.NewClient(docName(doc.Name, path), doc.Spec, ref)
		if err != nil {
			logger.Errorw("invalid client definition", "file", path, "error", err)
			return
		}
		l.store.ApplyEvent(entities.Event{Op: op, Client: client})
		return
	}

	var doc tenantDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		logger.Errorw("cannot parse tenant file", "file", path, "error", err)
		return
	}
	tenant, err := entities.NewTenant(docName(doc.Name, path), doc.Spec, ref)
	if err != nil {
		logger.Errorw("invalid tenant definition", "file", path, "error", err)
		return
	}
	l.store.ApplyEvent(entities.Event{Op: op, Tenant: tenant})
}

// docName falls back to the file basename when the document has no name.
func docName(name, path string) string {
	if name != "" {
		return name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func listYAMLFiles(root string) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // missing directories are not an error at startup
		}
		if !d.IsDir() && isYAMLFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}
