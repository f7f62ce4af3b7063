package replication

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ErrUnsupported はSnapshotできない値を渡した場合に返されるエラーです。
var ErrUnsupported = errors.New("replication: unsupported value")

type Kind uint8

const (
	KindValue Kind = iota
	KindStruct
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindStruct:
		return "struct"
	case KindCollection:
		return "collection"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "value":
		*k = KindValue
	case "struct":
		*k = KindStruct
	case "collection":
		*k = KindCollection
	default:
		return fmt.Errorf("replication: unknown node kind %q", b)
	}
	return nil
}

// Node は複製対象の状態木の1ノードです。
// KindValue はJSON値、KindStruct は宣言順のフィールド、KindCollection は挿入順の要素を持ちます。
type Node struct {
	Kind   Kind            `json:"kind"`
	Value  json.RawMessage `json:"value,omitempty"`
	Fields []Field         `json:"fields,omitempty"`
	Items  []Item          `json:"items,omitempty"`
}

type Field struct {
	Name string `json:"name"`
	Node *Node  `json:"node"`
}

// Item はコレクションの要素です。Seq はサーバー側でのみ意味を持ちます。
type Item struct {
	Key  string `json:"key"`
	Seq  uint64 `json:"-"`
	Node *Node  `json:"node"`
}

// Step はパッチのパスの1段です。Field はstructのフィールド、Key はコレクションの要素を指します。
type Step struct {
	Field string `json:"f,omitempty"`
	Key   string `json:"k,omitempty"`
}

func F(name string) Step { return Step{Field: name} }
func K(key string) Step  { return Step{Key: key} }

func (s Step) IsKey() bool { return s.Key != "" }

func (s Step) String() string {
	if s.IsKey() {
		return "[" + s.Key + "]"
	}
	return s.Field
}

func pathString(path []Step) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

func newStruct() *Node     { return &Node{Kind: KindStruct} }
func newCollection() *Node { return &Node{Kind: KindCollection} }

func (n *Node) field(name string) *Node {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Node
		}
	}
	return nil
}

func (n *Node) setField(name string, child *Node) {
	for i := range n.Fields {
		if n.Fields[i].Name == name {
			n.Fields[i].Node = child
			return
		}
	}
	n.Fields = append(n.Fields, Field{Name: name, Node: child})
}

func (n *Node) itemIndex(key string) int {
	for i := range n.Items {
		if n.Items[i].Key == key {
			return i
		}
	}
	return -1
}

// Lookup はパスが指すノードを返します。
func (n *Node) Lookup(path ...Step) (*Node, bool) {
	cur := n
	for _, s := range path {
		if cur == nil {
			return nil, false
		}
		switch {
		case s.IsKey() && cur.Kind == KindCollection:
			i := cur.itemIndex(s.Key)
			if i < 0 {
				return nil, false
			}
			cur = cur.Items[i].Node
		case !s.IsKey() && cur.Kind == KindStruct:
			cur = cur.field(s.Field)
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Decode はKindValueのノードをvにデコードします。
func (n *Node) Decode(v any) error {
	if n == nil || n.Kind != KindValue {
		return fmt.Errorf("%w: decode non-value node", ErrUnsupported)
	}
	return json.Unmarshal(n.Value, v)
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Kind: n.Kind}
	if n.Value != nil {
		out.Value = append(json.RawMessage(nil), n.Value...)
	}
	if n.Fields != nil {
		out.Fields = make([]Field, len(n.Fields))
		for i, f := range n.Fields {
			out.Fields[i] = Field{Name: f.Name, Node: f.Node.Clone()}
		}
	}
	if n.Items != nil {
		out.Items = make([]Item, len(n.Items))
		for i, it := range n.Items {
			out.Items[i] = Item{Key: it.Key, Seq: it.Seq, Node: it.Node.Clone()}
		}
	}
	return out
}

// Equal は2つの木が同じ状態を表すかどうかを返します。
// 空のコレクションや空のstructは存在しないノードと等しいとみなします。Seq は比較しません。
func Equal(a, b *Node) bool {
	if a == nil || b == nil || a.Kind != b.Kind {
		return isEmpty(a) && isEmpty(b)
	}
	switch a.Kind {
	case KindValue:
		return jsonEqual(a.Value, b.Value)
	case KindStruct:
		for _, f := range a.Fields {
			if !Equal(f.Node, b.field(f.Name)) {
				return false
			}
		}
		for _, f := range b.Fields {
			if a.field(f.Name) == nil && !isEmpty(f.Node) {
				return false
			}
		}
		return true
	case KindCollection:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if a.Items[i].Key != b.Items[i].Key || !Equal(a.Items[i].Node, b.Items[i].Node) {
				return false
			}
		}
		return true
	}
	return false
}

func isEmpty(n *Node) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case KindCollection:
		return len(n.Items) == 0
	case KindStruct:
		for _, f := range n.Fields {
			if !isEmpty(f.Node) {
				return false
			}
		}
		return true
	}
	return false
}

func jsonEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// Snapshot は `patch:"name"` タグの付いたフィールドを辿って状態木を作ります。
// タグの無いフィールドは複製されません。ルートはタグ付きのstructである必要があります。
func Snapshot(v any) (*Node, error) {
	n, err := snapshot(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	if n.Kind != KindStruct {
		return nil, fmt.Errorf("%w: root is %s, want struct", ErrUnsupported, n.Kind)
	}
	return n, nil
}

var entrySourceType = reflect.TypeFor[entrySource]()

func snapshot(rv reflect.Value) (*Node, error) {
	if !rv.IsValid() {
		return valueNode(nil)
	}
	if rv.Type().Implements(entrySourceType) {
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return newCollection(), nil
		}
		return snapshotCollection(rv.Interface().(entrySource))
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			if rv.Kind() == reflect.Pointer && len(fieldsOf(rv.Type().Elem())) > 0 {
				return snapshot(reflect.Zero(rv.Type().Elem()))
			}
			return valueNode(nil)
		}
		return snapshot(rv.Elem())
	case reflect.Struct:
		fields := fieldsOf(rv.Type())
		if len(fields) == 0 {
			return valueNode(rv.Interface())
		}
		n := &Node{Kind: KindStruct, Fields: make([]Field, 0, len(fields))}
		for _, f := range fields {
			child, err := snapshot(rv.FieldByIndex(f.index))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
			n.Fields = append(n.Fields, Field{Name: f.name, Node: child})
		}
		return n, nil
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
	default:
		return valueNode(rv.Interface())
	}
}

func snapshotCollection(src entrySource) (*Node, error) {
	entries := src.entries()
	n := &Node{Kind: KindCollection, Items: make([]Item, 0, len(entries))}
	for _, e := range entries {
		child, err := snapshot(reflect.ValueOf(e.value))
		if err != nil {
			return nil, fmt.Errorf("[%s]: %w", e.key, err)
		}
		n.Items = append(n.Items, Item{Key: e.key, Seq: e.seq, Node: child})
	}
	return n, nil
}

func valueNode(v any) (*Node, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return &Node{Kind: KindValue, Value: raw}, nil
}

type fieldInfo struct {
	name  string
	index []int
}

var fieldCache sync.Map // reflect.Type -> []fieldInfo

func fieldsOf(t reflect.Type) []fieldInfo {
	if t.Kind() != reflect.Struct {
		return nil
	}
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldInfo)
	}
	var out []fieldInfo
	for i := range t.NumField() {
		sf := t.Field(i)
		name, ok := sf.Tag.Lookup("patch")
		if !ok || name == "" || name == "-" || !sf.IsExported() {
			continue
		}
		out = append(out, fieldInfo{name: name, index: sf.Index})
	}
	fieldCache.Store(t, out)
	return out
}
