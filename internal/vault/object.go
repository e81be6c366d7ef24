package vault

import (
	"fmt"
	"os"
)

// ObjectKind distinguishes the variants of a RequestContext.
type ObjectKind int

const (
	KindFile ObjectKind = iota + 1
	KindCollection
)

func (k ObjectKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// FileObject is a data object as the vault sees it.
type FileObject struct {
	PhysicalPath string
	Mode         os.FileMode
	Flags        int   // os.O_* flags for Open
	Size         int64 // expected size; negative if unknown
}

// CollectionObject is a directory in the vault.
type CollectionObject struct {
	PhysicalPath string
}

// RequestContext carries the object a vault operation acts on. It is either
// a file or a collection; each operation checks the variant once on entry.
type RequestContext struct {
	kind       ObjectKind
	file       FileObject
	collection CollectionObject
}

// ForFile wraps a file object.
func ForFile(f FileObject) RequestContext {
	return RequestContext{kind: KindFile, file: f}
}

// ForCollection wraps a collection object.
func ForCollection(c CollectionObject) RequestContext {
	return RequestContext{kind: KindCollection, collection: c}
}

// Kind returns the variant.
func (rc RequestContext) Kind() ObjectKind {
	return rc.kind
}

// File returns the file object or ErrWrongObjectKind.
func (rc RequestContext) File() (FileObject, error) {
	if rc.kind != KindFile {
		return FileObject{}, fmt.Errorf("%w: want file, have %s", ErrWrongObjectKind, rc.kind)
	}
	return rc.file, nil
}

// Collection returns the collection object or ErrWrongObjectKind.
func (rc RequestContext) Collection() (CollectionObject, error) {
	if rc.kind != KindCollection {
		return CollectionObject{}, fmt.Errorf("%w: want collection, have %s", ErrWrongObjectKind, rc.kind)
	}
	return rc.collection, nil
}

// PhysicalPath returns the path of either variant.
func (rc RequestContext) PhysicalPath() string {
	switch rc.kind {
	case KindFile:
		return rc.file.PhysicalPath
	case KindCollection:
		return rc.collection.PhysicalPath
	default:
		return ""
	}
}
