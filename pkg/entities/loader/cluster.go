// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/uitsmijter/uitsmijter/pkg/crd"
	"github.com/uitsmijter/uitsmijter/pkg/entities"
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

const defaultResyncPeriod = 10 * time.Minute

// ClusterLoader watches the uitsmijter.io Tenant and Client resources and
// reconciles them into the entity store. The watch is scoped to a namespace
// when one is given, cluster-wide otherwise.
type ClusterLoader struct {
	store     *entities.Store
	client    dynamic.Interface
	namespace string
}

// NewClusterLoader creates a loader over the given dynamic client.
func NewClusterLoader(store *entities.Store, client dynamic.Interface, namespace string) *ClusterLoader {
	return &ClusterLoader{store: store, client: client, namespace: namespace}
}

// Run starts both informers and blocks until ctx is done.
func (l *ClusterLoader) Run(ctx context.Context) error {
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(
		l.client, defaultResyncPeriod, l.namespace, nil,
	)

	tenantInformer := factory.ForResource(crd.TenantGVR).Informer()
	if _, err := tenantInformer.AddEventHandler(l.tenantHandler()); err != nil {
		return err
	}
	clientInformer := factory.ForResource(crd.ClientGVR).Informer()
	if _, err := clientInformer.AddEventHandler(l.clientHandler()); err != nil {
		return err
	}

	factory.Start(ctx.Done())
	if !cache.WaitForCacheSync(ctx.Done(), tenantInformer.HasSynced, clientInformer.HasSynced) {
		logger.Warn("cluster entity informers did not sync before shutdown")
	}

	<-ctx.Done()
	factory.Shutdown()
	return nil
}

func (l *ClusterLoader) tenantHandler() cache.ResourceEventHandler {
	return cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) {
			l.applyTenant(obj, entities.EventAdded)
		},
		UpdateFunc: func(_, newObj any) {
			l.applyTenant(newObj, entities.EventModified)
		},
		DeleteFunc: func(obj any) {
			l.deleteEntity(obj, false)
		},
	}
}

func (l *ClusterLoader) clientHandler() cache.ResourceEventHandler {
	return cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) {
			l.applyClient(obj, entities.EventAdded)
		},
		UpdateFunc: func(_, newObj any) {
			l.applyClient(newObj, entities.EventModified)
		},
		DeleteFunc: func(obj any) {
			l.deleteEntity(obj, true)
		},
	}
}

func (l *ClusterLoader) applyTenant(obj any, op entities.EventOp) {
	u, ok := toUnstructured(obj)
	if !ok {
		return
	}
	tenant, err := crd.TenantFromObject(u)
	if err != nil {
		logger.Errorw("invalid tenant resource", "name", u.GetName(), "namespace", u.GetNamespace(), "error", err)
		return
	}
	l.store.ApplyEvent(entities.Event{Op: op, Tenant: tenant})
}

func (l *ClusterLoader) applyClient(obj any, op entities.EventOp) {
	u, ok := toUnstructured(obj)
	if !ok {
		return
	}
	client, err := crd.ClientFromObject(u)
	if err != nil {
		logger.Errorw("invalid client resource", "name", u.GetName(), "namespace", u.GetNamespace(), "error", err)
		return
	}
	l.store.ApplyEvent(entities.Event{Op: op, Client: client})
}

func (l *ClusterLoader) deleteEntity(obj any, isClient bool) {
	u, ok := toUnstructured(obj)
	if !ok {
		return
	}
	ref, err := crd.RefFromObject(u)
	if err != nil {
		logger.Errorw("cannot derive reference from deleted resource", "name", u.GetName(), "error", err)
		return
	}
	// Deletion matches by uid only; the final revision is irrelevant.
	ref.Revision = ""
	l.store.ApplyEvent(entities.Event{Op: entities.EventDeleted, Ref: ref, IsClient: isClient})
}

// toUnstructured unwraps informer objects, including tombstones delivered on
// missed deletes.
func toUnstructured(obj any) (*unstructured.Unstructured, bool) {
	switch v := obj.(type) {
	case *unstructured.Unstructured:
		return v, true
	case cache.DeletedFinalStateUnknown:
		u, ok := v.Obj.(*unstructured.Unstructured)
		return u, ok
	default:
		logger.Warnw("unexpected object type from cluster watch", "type", fmt.Sprintf("%T", obj))
		return nil, false
	}
}
