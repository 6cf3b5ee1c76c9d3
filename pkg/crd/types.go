// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package crd describes the uitsmijter.io custom resources and their
// conversion into entity-store values.
package crd

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/yaml"

	"github.com/uitsmijter/uitsmijter/pkg/entities"
)

// Group and version of the custom resources.
const (
	Group   = "uitsmijter.io"
	Version = "v1"
)

// GroupVersionResources of the watched kinds.
var (
	TenantGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "tenants"}
	ClientGVR = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "clients"}
)

// refFromObject builds the cluster entity reference from resource metadata.
// The uid is required and must be a UUID; the resourceVersion is required.
func refFromObject(obj *unstructured.Unstructured) (entities.Ref, error) {
	uid := string(obj.GetUID())
	if uid == "" {
		return entities.Ref{}, fmt.Errorf("%s/%s: metadata.uid is required", obj.GetNamespace(), obj.GetName())
	}
	rev := obj.GetResourceVersion()
	if rev == "" {
		return entities.Ref{}, fmt.Errorf("%s/%s: metadata.resourceVersion is required", obj.GetNamespace(), obj.GetName())
	}
	return entities.ClusterRef(uid, rev), nil
}

func decodeSpec(obj *unstructured.Unstructured, into any) error {
	spec, ok := obj.Object["spec"]
	if !ok {
		return fmt.Errorf("%s/%s: spec is required", obj.GetNamespace(), obj.GetName())
	}
	raw, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	return yaml.Unmarshal(raw, into)
}

// TenantFromObject converts an unstructured Tenant resource.
func TenantFromObject(obj *unstructured.Unstructured) (*entities.Tenant, error) {
	ref, err := refFromObject(obj)
	if err != nil {
		return nil, err
	}
	var spec entities.TenantSpec
	if err := decodeSpec(obj, &spec); err != nil {
		return nil, err
	}
	return entities.NewTenant(obj.GetName(), spec, ref)
}

// ClientFromObject converts an unstructured Client resource.
func ClientFromObject(obj *unstructured.Unstructured) (*entities.Client, error) {
	ref, err := refFromObject(obj)
	if err != nil {
		return nil, err
	}
	var spec entities.ClientSpec
	if err := decodeSpec(obj, &spec); err != nil {
		return nil, err
	}
	return entities.NewClient(obj.GetName(), spec, ref)
}

// RefFromObject exposes reference extraction for the cluster loader's
// delete path, where the spec may already be gone.
func RefFromObject(obj *unstructured.Unstructured) (entities.Ref, error) {
	return refFromObject(obj)
}
