package replication

import (
	"iter"
	"slices"
)

// Collection は挿入順を保持するキー付きコレクションです。
// 要素ごとに挿入シーケンスを持ち、同じキーを削除後に再挿入すると別の要素として扱われます。
type Collection[V any] struct {
	order []string
	slots map[string]*slot[V]
	next  uint64
}

type slot[V any] struct {
	seq   uint64
	value V
}

// NewCollection は空のCollectionを生成します。
func NewCollection[V any]() *Collection[V] {
	return &Collection[V]{slots: make(map[string]*slot[V])}
}

// Set はkeyの要素を追加または置き換えます。既存の要素は挿入順を保ちます。
func (c *Collection[V]) Set(key string, value V) {
	if c.slots == nil {
		c.slots = make(map[string]*slot[V])
	}
	if s, ok := c.slots[key]; ok {
		s.value = value
		return
	}
	c.next++
	c.slots[key] = &slot[V]{seq: c.next, value: value}
	c.order = append(c.order, key)
}

// Remove はkeyの要素を削除し、削除したかどうかを返します。
func (c *Collection[V]) Remove(key string) bool {
	if _, ok := c.slots[key]; !ok {
		return false
	}
	delete(c.slots, key)
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	return true
}

// Clear は全ての要素を削除します。シーケンスは巻き戻しません。
func (c *Collection[V]) Clear() {
	clear(c.slots)
	c.order = c.order[:0]
}

func (c *Collection[V]) Get(key string) (V, bool) {
	if s, ok := c.slots[key]; ok {
		return s.value, true
	}
	var zero V
	return zero, false
}

func (c *Collection[V]) Has(key string) bool {
	_, ok := c.slots[key]
	return ok
}

func (c *Collection[V]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Keys は挿入順のキーのコピーを返します。
func (c *Collection[V]) Keys() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.order)
}

// All は挿入順に要素を列挙します。
func (c *Collection[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		if c == nil {
			return
		}
		for _, key := range c.order {
			if !yield(key, c.slots[key].value) {
				return
			}
		}
	}
}

func (c *Collection[V]) entries() []entry {
	if c == nil {
		return nil
	}
	out := make([]entry, 0, len(c.order))
	for _, key := range c.order {
		s := c.slots[key]
		out = append(out, entry{key: key, seq: s.seq, value: s.value})
	}
	return out
}

type entry struct {
	key   string
	seq   uint64
	value any
}

// entrySource はSnapshotがコレクションとして扱う型の印です。
type entrySource interface {
	entries() []entry
}
