package types

import "encoding/json"

// Snapshot is the full state of one storage namespace.
type Snapshot struct {
	Namespace string                     `json:"namespace"`
	Version   string                     `json:"version"`
	Data      map[string]json.RawMessage `json:"data"`
}

// OpKind is a storage mutation kind.
type OpKind string

const (
	OpSet   OpKind = "set"
	OpDel   OpKind = "del"
	OpClear OpKind = "clear"
)

// PatchOp is one mutation inside a patch.
type PatchOp struct {
	Op    OpKind          `json:"op"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}
