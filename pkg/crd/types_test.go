// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package crd

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

func tenantObject(uid, rev string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": Group + "/" + Version,
		"kind":       "Tenant",
		"metadata": map[string]any{
			"name":      "cheese",
			"namespace": "default",
		},
		"spec": map[string]any{
			"hosts":     []any{"cheese.example.com"},
			"providers": []any{"class UserLoginProvider"},
			"interceptor": map[string]any{
				"enabled": true,
			},
		},
	}}
	obj.SetUID(types.UID(uid))
	obj.SetResourceVersion(rev)
	return obj
}

func TestTenantFromObject(t *testing.T) {
	uid := uuid.NewString()
	tenant, err := TenantFromObject(tenantObject(uid, "42"))
	require.NoError(t, err)

	assert.Equal(t, "cheese", tenant.Name)
	assert.Equal(t, []string{"cheese.example.com"}, tenant.Hosts)
	assert.True(t, tenant.Interceptor.Enabled)
	assert.Equal(t, uid, tenant.Ref.UID)
	assert.Equal(t, "42", tenant.Ref.Revision)
}

func TestTenantFromObjectRequiresMetadata(t *testing.T) {
	_, err := TenantFromObject(tenantObject("", "42"))
	assert.ErrorContains(t, err, "metadata.uid")

	_, err = TenantFromObject(tenantObject(uuid.NewString(), ""))
	assert.ErrorContains(t, err, "metadata.resourceVersion")
}

func TestClientFromObject(t *testing.T) {
	ident := uuid.NewString()
	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": Group + "/" + Version,
		"kind":       "Client",
		"metadata":   map[string]any{"name": "shop"},
		"spec": map[string]any{
			"ident":         ident,
			"tenantname":    "cheese",
			"redirect_urls": []any{`https://shop\.example\.com/.*`},
			"scopes":        []any{"access"},
		},
	}}
	obj.SetUID(types.UID(uuid.NewString()))
	obj.SetResourceVersion("7")

	client, err := ClientFromObject(obj)
	require.NoError(t, err)
	assert.Equal(t, ident, client.Ident.String())
	assert.Equal(t, "cheese", client.TenantName)
	assert.True(t, client.MatchesRedirectURI("https://shop.example.com/cb"))
}

func TestClientFromObjectMissingSpec(t *testing.T) {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"metadata": map[string]any{"name": "shop"},
	}}
	obj.SetUID(types.UID(uuid.NewString()))
	obj.SetResourceVersion("7")

	_, err := ClientFromObject(obj)
	assert.ErrorContains(t, err, "spec is required")
}
