// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// EventOp is the kind of change a loader observed.
type EventOp string

// Loader event operations.
const (
	EventAdded    EventOp = "added"
	EventModified EventOp = "modified"
	EventDeleted  EventOp = "deleted"
)

// Event is one observed change to an entity definition. For Added and
// Modified exactly one of Tenant or Client is set; for Deleted only Ref and
// the corresponding kind flag are needed.
type Event struct {
	Op     EventOp
	Tenant *Tenant
	Client *Client

	// Ref identifies the entity for Deleted events.
	Ref Ref

	// IsClient marks a Deleted event as referring to a client.
	IsClient bool
}

// Store holds the current set of tenants and clients. All mutations are
// serialized through ApplyEvent; readers observe a consistent snapshot per
// lookup. Entities are treated as immutable once inserted.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
	clients map[uuid.UUID]*Client

	// tenantChanges receives a signal per tenant add/remove; used for
	// template-loader housekeeping. Sends never block.
	tenantChanges chan string

	// onClientRemoved is invoked after a client left the store; used to
	// reset denied-attempt tracking.
	onClientRemoved func(ident uuid.UUID)
}

// NewStore creates an empty entity store.
func NewStore() *Store {
	return &Store{
		tenants:       make(map[string]*Tenant),
		clients:       make(map[uuid.UUID]*Client),
		tenantChanges: make(chan string, 16),
	}
}

// TenantChanges returns a channel that signals tenant add/remove events by
// tenant name. The channel is buffered; slow consumers miss events rather
// than blocking the reconciler.
func (s *Store) TenantChanges() <-chan string {
	return s.tenantChanges
}

// SetClientRemovedHook registers a callback invoked after a client is
// removed. Must be called before loaders start.
func (s *Store) SetClientRemovedHook(fn func(ident uuid.UUID)) {
	s.onClientRemoved = fn
}

// ApplyEvent reconciles one loader event into the store.
//
// An Added event whose reference equals an existing entity's reference
// (same UID, equal or one-sided-empty revision for cluster refs) is a no-op,
// and so is a Modified event whose cluster reference carries the same
// concrete revision as the stored one; informer resyncs redeliver unchanged
// objects and must not churn the store. Otherwise any prior entity from the
// same source is removed first and the new one inserted. File references
// carry no revision, so Modified always replaces them. Deleted removes by
// source.
func (s *Store) ApplyEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Op {
	case EventAdded, EventModified:
		switch {
		case ev.Tenant != nil:
			s.upsertTenant(ev.Tenant, ev.Op)
		case ev.Client != nil:
			s.upsertClient(ev.Client, ev.Op)
		default:
			logger.Warnw("entity event without payload ignored", "op", ev.Op)
		}
	case EventDeleted:
		if ev.IsClient {
			s.removeClientByRef(ev.Ref)
		} else {
			s.removeTenantByRef(ev.Ref)
		}
	}
}

func (s *Store) upsertTenant(t *Tenant, op EventOp) {
	if prior := s.findTenantByRefLocked(t.Ref); prior != nil {
		if skipUpsert(prior.Ref, t.Ref, op) {
			logger.Debugw("tenant unchanged, skipping", "tenant", t.Name, "ref", t.Ref.String())
			return
		}
		delete(s.tenants, prior.Name)
	}
	s.tenants[t.Name] = t
	s.notifyTenant(t.Name)
	logger.Infow("tenant loaded", "tenant", t.Name, "ref", t.Ref.String())
}

func (s *Store) upsertClient(c *Client, op EventOp) {
	if prior := s.findClientByRefLocked(c.Ref); prior != nil {
		if skipUpsert(prior.Ref, c.Ref, op) {
			logger.Debugw("client unchanged, skipping", "client", c.Ident.String(), "ref", c.Ref.String())
			return
		}
		s.deleteClientLocked(prior)
	}
	s.clients[c.Ident] = c
	logger.Infow("client loaded", "client", c.Ident.String(), "tenant", c.TenantName, "ref", c.Ref.String())
}

// skipUpsert reports whether an incoming add/modify leaves the stored entity
// in place. Added skips whenever the references are equal. Modified skips
// only when both sides carry the same concrete cluster revision; a file
// reference has no revision to compare, so Modified always replaces it.
func skipUpsert(prior, next Ref, op EventOp) bool {
	if !prior.Equal(next) {
		return false
	}
	if op == EventAdded {
		return true
	}
	return prior.Kind == RefKindCluster && next.Revision != "" && prior.Revision == next.Revision
}

func (s *Store) removeTenantByRef(ref Ref) {
	if prior := s.findTenantByRefLocked(ref); prior != nil {
		delete(s.tenants, prior.Name)
		s.notifyTenant(prior.Name)
		logger.Infow("tenant removed", "tenant", prior.Name, "ref", ref.String())
	}
}

func (s *Store) removeClientByRef(ref Ref) {
	if prior := s.findClientByRefLocked(ref); prior != nil {
		s.deleteClientLocked(prior)
		logger.Infow("client removed", "client", prior.Ident.String(), "ref", ref.String())
	}
}

func (s *Store) deleteClientLocked(c *Client) {
	delete(s.clients, c.Ident)
	if s.onClientRemoved != nil {
		s.onClientRemoved(c.Ident)
	}
}

func (s *Store) notifyTenant(name string) {
	select {
	case s.tenantChanges <- name:
	default:
	}
}

func (s *Store) findTenantByRefLocked(ref Ref) *Tenant {
	for _, t := range s.tenants {
		if t.Ref.SameSource(ref) {
			return t
		}
	}
	return nil
}

func (s *Store) findClientByRefLocked(ref Ref) *Client {
	for _, c := range s.clients {
		if c.Ref.SameSource(ref) {
			return c
		}
	}
	return nil
}

// FindTenantByName returns the tenant with the given name, or nil.
func (s *Store) FindTenantByName(name string) *Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[name]
}

// FindTenantByHost returns the tenant responsible for a host. Exact host
// entries win over wildcard patterns.
func (s *Store) FindTenantByHost(host string) *Tenant {
	host = strings.ToLower(host)
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		for _, h := range t.Hosts {
			if strings.ToLower(h) == host {
				return t
			}
		}
	}
	for _, t := range s.tenants {
		if t.MatchesHost(host) {
			return t
		}
	}
	return nil
}

// FindClientByIdent returns the client with the given ident, or nil.
func (s *Store) FindClientByIdent(ident uuid.UUID) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[ident]
}

// FindTenantByReference returns the tenant originating from ref, or nil.
func (s *Store) FindTenantByReference(ref Ref) *Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findTenantByRefLocked(ref)
}

// FindClientByReference returns the client originating from ref, or nil.
func (s *Store) FindClientByReference(ref Ref) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findClientByRefLocked(ref)
}

// Tenants returns a snapshot of all tenants.
func (s *Store) Tenants() []*Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	return out
}

// Clients returns a snapshot of all clients.
func (s *Store) Clients() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}
