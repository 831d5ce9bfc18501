package search

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
)

// Boolean methods of an internal node.
const (
	MethodAnd = "and"
	MethodOr  = "or"
	MethodNot = "not"
)

// Node is one node of a boolean search tree. A node with a Method is
// internal and combines Operations; any other node is a leaf comparing
// Attribute against Value with Operation.
type Node struct {
	Method     string `json:"method,omitempty"`
	Operations []Node `json:"operations,omitempty"`

	Attribute string      `json:"attribute,omitempty"`
	Operation string      `json:"operation,omitempty"`
	Value     interface{} `json:"value"`
	Inverse   bool        `json:"inverse,omitempty"`
}

// IsLeaf reports whether n compares an attribute.
func (n Node) IsLeaf() bool {
	return n.Method == ""
}

// And, Or and Not build internal nodes.
func And(ops ...Node) Node { return Node{Method: MethodAnd, Operations: ops} }
func Or(ops ...Node) Node  { return Node{Method: MethodOr, Operations: ops} }
func Not(op Node) Node     { return Node{Method: MethodNot, Operations: []Node{op}} }

// Leaf builds a comparison node.
func Leaf(attr, op string, value interface{}) Node {
	return Node{Attribute: attr, Operation: op, Value: value}
}

// Decode parses a JSON search tree.
func Decode(raw []byte) (Node, error) {
	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return Node{}, attribute.Validationf("malformed search object: %v", err)
	}
	return n, nil
}

// DecodeEncoded parses a base64 encoded JSON search tree, as sent in
// encoded_search query parameters. Both the standard and the URL alphabet
// are accepted.
func DecodeEncoded(s string) (Node, error) {
	s = strings.TrimSpace(s)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(s)
	}
	if err != nil {
		return Node{}, attribute.Validationf("search object is not base64: %v", err)
	}
	return Decode(raw)
}

// Encode renders n in the form DecodeEncoded accepts.
func Encode(n Node) (string, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
