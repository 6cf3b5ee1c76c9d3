// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTenant(t *testing.T, name string, hosts ...string) *Tenant {
	t.Helper()
	tenant, err := NewTenant(name, TenantSpec{Hosts: hosts}, FileRef("/tenants/"+name+".yaml"))
	require.NoError(t, err)
	return tenant
}

func testClient(t *testing.T, tenantName string, spec ClientSpec) *Client {
	t.Helper()
	if spec.Ident == "" {
		spec.Ident = uuid.NewString()
	}
	spec.TenantName = tenantName
	if len(spec.RedirectURLs) == 0 {
		spec.RedirectURLs = []string{"https?://localhost.*"}
	}
	c, err := NewClient("test-client", spec, FileRef("/clients/"+spec.Ident+".yaml"))
	require.NoError(t, err)
	return c
}

func TestHostMatching(t *testing.T) {
	tenant := testTenant(t, "egg", "*.egg.example.com")

	assert.True(t, tenant.MatchesHost("yolk.egg.example.com"))
	assert.False(t, tenant.MatchesHost("egg.example.com"))
	assert.False(t, tenant.MatchesHost("yolk.other.com"))

	exact := testTenant(t, "plain", "login.example.com")
	assert.True(t, exact.MatchesHost("login.example.com"))
	assert.False(t, exact.MatchesHost("sub.login.example.com"))
}

func TestRefEquality(t *testing.T) {
	uid := uuid.NewString()

	assert.False(t, ClusterRef(uid, "rev1").Equal(ClusterRef(uid, "rev2")))
	assert.True(t, ClusterRef(uid, "rev1").Equal(ClusterRef(uid, "rev1")))
	assert.True(t, ClusterRef(uid, "").Equal(ClusterRef(uid, "rev2")))
	assert.True(t, ClusterRef(uid, "rev1").Equal(ClusterRef(uid, "")))
	assert.False(t, ClusterRef(uid, "rev1").Equal(ClusterRef(uuid.NewString(), "rev1")))

	assert.True(t, FileRef("/a.yaml").Equal(FileRef("/a.yaml")))
	assert.False(t, FileRef("/a.yaml").Equal(FileRef("/b.yaml")))
	assert.False(t, FileRef("/a.yaml").Equal(ClusterRef(uid, "")))
}

func TestScopeFiltering(t *testing.T) {
	client := testClient(t, "egg", ClientSpec{
		Scopes:                []string{"access", "openid"},
		AllowedProviderScopes: []string{"user:*"},
	})

	granted := client.AllowedScopes(
		[]string{"access", "openid", "admin:delete"},
		[]string{"user:list", "admin:write"},
	)
	assert.ElementsMatch(t, []string{"access", "openid", "user:list"}, granted)
}

func TestScopeFilteringUnsetProviderScopes(t *testing.T) {
	client := testClient(t, "egg", ClientSpec{Scopes: []string{"access"}})

	granted := client.AllowedScopes([]string{"access"}, []string{"anything:goes"})
	assert.ElementsMatch(t, []string{"access", "anything:goes"}, granted)
}

func TestScopePatternMatches(t *testing.T) {
	assert.True(t, ScopePatternMatches("user:*", "user:list"))
	assert.False(t, ScopePatternMatches("user:*", "admin:list"))
	assert.True(t, ScopePatternMatches("openid", "openid"))
	assert.False(t, ScopePatternMatches("openid", "openid2"))
	assert.True(t, ScopePatternMatches("*", "whatever"))
	assert.True(t, ScopePatternMatches("a*c", "abc"))
	assert.False(t, ScopePatternMatches("a*c", "abd"))
}

func TestSplitScopes(t *testing.T) {
	assert.Equal(t, []string{"access", "openid"}, SplitScopes("access openid"))
	assert.Equal(t, []string{"access", "openid"}, SplitScopes("access+openid"))
	assert.Empty(t, SplitScopes(""))
}

func TestStoreApplyEventReplaceVsSkip(t *testing.T) {
	store := NewStore()
	uid := uuid.NewString()

	tenantV1, err := NewTenant("egg", TenantSpec{Hosts: []string{"egg.example.com"}}, ClusterRef(uid, "1"))
	require.NoError(t, err)
	store.ApplyEvent(Event{Op: EventAdded, Tenant: tenantV1})
	require.NotNil(t, store.FindTenantByName("egg"))

	// Same uid and revision: added event is a no-op, the old value stays.
	tenantDup, err := NewTenant("egg", TenantSpec{Hosts: []string{"other.example.com"}}, ClusterRef(uid, "1"))
	require.NoError(t, err)
	store.ApplyEvent(Event{Op: EventAdded, Tenant: tenantDup})
	assert.Equal(t, []string{"egg.example.com"}, store.FindTenantByName("egg").Hosts)

	// New revision replaces.
	tenantV2, err := NewTenant("egg", TenantSpec{Hosts: []string{"new.example.com"}}, ClusterRef(uid, "2"))
	require.NoError(t, err)
	store.ApplyEvent(Event{Op: EventAdded, Tenant: tenantV2})
	assert.Equal(t, []string{"new.example.com"}, store.FindTenantByName("egg").Hosts)

	// Deleted removes by uid regardless of revision.
	store.ApplyEvent(Event{Op: EventDeleted, Ref: ClusterRef(uid, "")})
	assert.Nil(t, store.FindTenantByName("egg"))
}

func TestStoreModifiedSkipsUnchangedClusterRevision(t *testing.T) {
	store := NewStore()
	uid := uuid.NewString()

	tenantV1, err := NewTenant("egg", TenantSpec{Hosts: []string{"egg.example.com"}}, ClusterRef(uid, "7"))
	require.NoError(t, err)
	store.ApplyEvent(Event{Op: EventAdded, Tenant: tenantV1})
	drainTenantChanges(store)

	// Informer resyncs redeliver unchanged objects as updates: a modified
	// event with the same uid and revision must neither replace the stored
	// value nor signal a tenant change.
	resync, err := NewTenant("egg", TenantSpec{Hosts: []string{"other.example.com"}}, ClusterRef(uid, "7"))
	require.NoError(t, err)
	store.ApplyEvent(Event{Op: EventModified, Tenant: resync})
	assert.Same(t, tenantV1, store.FindTenantByName("egg"))
	select {
	case name := <-store.TenantChanges():
		t.Fatalf("unexpected tenant change notification for %q", name)
	default:
	}

	// A modified event with a new revision still replaces.
	tenantV2, err := NewTenant("egg", TenantSpec{Hosts: []string{"new.example.com"}}, ClusterRef(uid, "8"))
	require.NoError(t, err)
	store.ApplyEvent(Event{Op: EventModified, Tenant: tenantV2})
	assert.Equal(t, []string{"new.example.com"}, store.FindTenantByName("egg").Hosts)
}

func drainTenantChanges(store *Store) {
	for {
		select {
		case <-store.TenantChanges():
		default:
			return
		}
	}
}

func TestStoreModifiedReplacesFileEntity(t *testing.T) {
	store := NewStore()

	v1 := testTenant(t, "egg", "one.example.com")
	store.ApplyEvent(Event{Op: EventAdded, Tenant: v1})

	v2, err := NewTenant("egg", TenantSpec{Hosts: []string{"two.example.com"}}, v1.Ref)
	require.NoError(t, err)
	store.ApplyEvent(Event{Op: EventModified, Tenant: v2})

	assert.Equal(t, []string{"two.example.com"}, store.FindTenantByName("egg").Hosts)
}

func TestStoreClientRemovedHook(t *testing.T) {
	store := NewStore()
	var removed []uuid.UUID
	store.SetClientRemovedHook(func(ident uuid.UUID) { removed = append(removed, ident) })

	client := testClient(t, "egg", ClientSpec{})
	store.ApplyEvent(Event{Op: EventAdded, Client: client})
	require.NotNil(t, store.FindClientByIdent(client.Ident))

	store.ApplyEvent(Event{Op: EventDeleted, Ref: client.Ref, IsClient: true})
	assert.Nil(t, store.FindClientByIdent(client.Ident))
	assert.Equal(t, []uuid.UUID{client.Ident}, removed)
}

func TestFindTenantByHostPrefersExact(t *testing.T) {
	store := NewStore()
	wildcard := testTenant(t, "wild", "*.example.com")
	exact := testTenant(t, "exact", "login.example.com")
	store.ApplyEvent(Event{Op: EventAdded, Tenant: wildcard})
	store.ApplyEvent(Event{Op: EventAdded, Tenant: exact})

	found := store.FindTenantByHost("login.example.com")
	require.NotNil(t, found)
	assert.Equal(t, "exact", found.Name)

	assert.Equal(t, "wild", store.FindTenantByHost("app.example.com").Name)
	assert.Nil(t, store.FindTenantByHost("nowhere.org"))
}

func TestClientRedirectAndReferer(t *testing.T) {
	client := testClient(t, "egg", ClientSpec{
		RedirectURLs: []string{`https://app\.example\.com/.*`},
		Referrers:    []string{`http://localhost:8080/.*`},
	})

	assert.True(t, client.MatchesRedirectURI("https://app.example.com/callback"))
	assert.False(t, client.MatchesRedirectURI("https://evil.example.org/callback"))

	assert.True(t, client.MatchesReferer("http://localhost:8080/login"))
	assert.False(t, client.MatchesReferer("http://evilhackerssite/hoho"))

	open := testClient(t, "egg", ClientSpec{})
	assert.True(t, open.MatchesReferer("http://anything"))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("bad", ClientSpec{Ident: "not-a-uuid", TenantName: "t", RedirectURLs: []string{".*"}}, FileRef("/x"))
	assert.Error(t, err)

	_, err = NewClient("bad", ClientSpec{Ident: uuid.NewString(), RedirectURLs: []string{".*"}}, FileRef("/x"))
	assert.Error(t, err)

	_, err = NewClient("bad", ClientSpec{Ident: uuid.NewString(), TenantName: "t", RedirectURLs: []string{"(["}}, FileRef("/x"))
	assert.Error(t, err)
}
