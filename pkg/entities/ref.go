// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package entities holds the tenant and client model of the authorization
// server together with the in-memory store the loaders reconcile into.
package entities

import "fmt"

// RefKind discriminates where an entity definition came from.
type RefKind string

// Entity reference kinds.
const (
	RefKindFile    RefKind = "file"
	RefKindCluster RefKind = "cluster"
)

// Ref identifies the source of an entity definition. A file reference is
// keyed by path; a cluster reference by resource UID plus an optional
// revision used for replace-vs-skip decisions.
type Ref struct {
	Kind RefKind

	// Path of the YAML file, set for RefKindFile.
	Path string

	// UID and Revision of the cluster resource, set for RefKindCluster.
	// Revision may be empty.
	UID      string
	Revision string
}

// FileRef returns a reference to an entity defined in a YAML file.
func FileRef(path string) Ref {
	return Ref{Kind: RefKindFile, Path: path}
}

// ClusterRef returns a reference to an entity defined as a cluster resource.
func ClusterRef(uid, revision string) Ref {
	return Ref{Kind: RefKindCluster, UID: uid, Revision: revision}
}

// Equal reports whether two references denote the same entity source.
// File references compare by path. Cluster references compare by UID; if
// either revision is empty the revisions are not compared, so a reference
// without a revision matches any stored revision of the same UID.
func (r Ref) Equal(other Ref) bool {
	if r.Kind != other.Kind {
		return false
	}
	switch r.Kind {
	case RefKindFile:
		return r.Path == other.Path
	case RefKindCluster:
		if r.UID != other.UID {
			return false
		}
		if r.Revision == "" || other.Revision == "" {
			return true
		}
		return r.Revision == other.Revision
	default:
		return false
	}
}

// SameSource reports whether two cluster references point at the same
// resource regardless of revision. For file references it equals Equal.
func (r Ref) SameSource(other Ref) bool {
	if r.Kind != other.Kind {
		return false
	}
	if r.Kind == RefKindCluster {
		return r.UID == other.UID
	}
	return r.Path == other.Path
}

func (r Ref) String() string {
	if r.Kind == RefKindCluster {
		if r.Revision != "" {
			return fmt.Sprintf("cluster(%s@%s)", r.UID, r.Revision)
		}
		return fmt.Sprintf("cluster(%s)", r.UID)
	}
	return fmt.Sprintf("file(%s)", r.Path)
}
