package replication_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"portofmars/server/replication"
)

type testItem struct {
	Name  string                          `patch:"name"`
	Count int                             `patch:"count"`
	Tags  *replication.Collection[string] `patch:"tags"`
}

type testMeta struct {
	Note   string         `patch:"note"`
	Scores map[string]int `patch:"scores"`
}

type testState struct {
	Phase string                                `patch:"phase"`
	Round int                                   `patch:"round"`
	Items *replication.Collection[*testItem]    `patch:"items"`
	Meta  testMeta                              `patch:"meta"`
	Log   *replication.Collection[string]       `patch:"log"`
	Extra *replication.Collection[*testItem]    `patch:"extra"`
	Cache map[string]string
	hits  int
}

func newTestState() *testState {
	return &testState{
		Phase: "lobby",
		Round: 1,
		Items: replication.NewCollection[*testItem](),
		Meta:  testMeta{Scores: map[string]int{}},
		Log:   replication.NewCollection[string](),
	}
}

func newItem(name string, count int) *testItem {
	return &testItem{Name: name, Count: count, Tags: replication.NewCollection[string]()}
}

func opStrings(ops []replication.Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func mustCommit(t *testing.T, r *replication.Replicator, state any) replication.Batch {
	t.Helper()
	b, err := r.Commit(state)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return b
}

func TestDiff_OrdersByDeclarationThenInsertion(t *testing.T) {
	state := newTestState()
	state.Items.Set("a", newItem("a", 1))
	state.Items.Set("b", newItem("b", 1))
	state.Items.Set("c", newItem("c", 1))

	r := replication.NewReplicator()
	mustCommit(t, r, state)

	state.Items.Remove("b")
	state.Items.Set("d", newItem("d", 1))
	c, _ := state.Items.Get("c")
	c.Count = 5
	a, _ := state.Items.Get("a")
	a.Count = 2
	state.Phase = "invest"

	b := mustCommit(t, r, state)
	want := []string{
		"change .phase",
		"remove items[b]",
		"change items/[a].count",
		"change items/[c].count",
		"add items[d]",
	}
	if diff := cmp.Diff(want, opStrings(b.Ops)); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_ReinsertedKeyIsRemoveThenAdd(t *testing.T) {
	state := newTestState()
	state.Items.Set("a", newItem("a", 1))
	state.Items.Set("b", newItem("b", 1))

	r := replication.NewReplicator()
	mustCommit(t, r, state)

	state.Items.Remove("a")
	state.Items.Set("a", newItem("a", 1))

	b := mustCommit(t, r, state)
	want := []string{"remove items[a]", "add items[a]"}
	if diff := cmp.Diff(want, opStrings(b.Ops)); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}
	if got := state.Items.Keys(); !cmp.Equal(got, []string{"b", "a"}) {
		t.Fatalf("keys = %v, want [b a]", got)
	}
}

func TestCommit_UntaggedFieldsAreNotReplicated(t *testing.T) {
	state := newTestState()
	r := replication.NewReplicator()
	first := mustCommit(t, r, state)

	state.Cache = map[string]string{"k": "v"}
	state.hits++

	b := mustCommit(t, r, state)
	if !b.Empty() {
		t.Fatalf("expected empty batch, got %v", opStrings(b.Ops))
	}
	if b.Seq != first.Seq {
		t.Fatalf("seq advanced on empty batch: %d -> %d", first.Seq, b.Seq)
	}
}

func TestResync_ReplayedTwiceIsIdempotent(t *testing.T) {
	state := newTestState()
	state.Items.Set("a", newItem("a", 3))
	state.Items.Set("b", newItem("b", 4))
	b, _ := state.Items.Get("b")
	b.Tags.Set("x", "red")
	state.Meta.Note = "hello"
	state.Meta.Scores["a"] = 10

	r := replication.NewReplicator()
	mustCommit(t, r, state)

	m := replication.NewMirror()
	if err := m.Apply(r.Resync()); err != nil {
		t.Fatalf("first resync: %v", err)
	}
	once := m.Root().Clone()
	if err := m.Apply(r.Resync()); err != nil {
		t.Fatalf("second resync: %v", err)
	}
	if !replication.Equal(once, m.Root()) {
		t.Fatal("second resync changed mirror state")
	}
	if !replication.Equal(r.Published(), m.Root()) {
		t.Fatal("mirror differs from published state")
	}
}

func TestResync_ThenIncrementalBatches(t *testing.T) {
	state := newTestState()
	state.Items.Set("a", newItem("a", 1))
	r := replication.NewReplicator()
	mustCommit(t, r, state)

	m := replication.NewMirror()
	if err := m.Apply(r.Resync()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	state.Round = 2
	state.Log.Set("1", "round two")
	if err := m.Apply(mustCommit(t, r, state)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	node, ok := m.Root().Lookup(replication.F("round"))
	if !ok {
		t.Fatal("round missing from mirror")
	}
	var round int
	if err := node.Decode(&round); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if round != 2 {
		t.Fatalf("round = %d, want 2", round)
	}
}

func TestResync_RecoversFromMissedBatch(t *testing.T) {
	state := newTestState()
	state.Items.Set("a", newItem("a", 1))
	state.Items.Set("b", newItem("b", 1))
	r := replication.NewReplicator()
	m := replication.NewMirror()
	if err := m.Apply(mustCommit(t, r, state)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// このbatchは届かない
	state.Items.Remove("a")
	mustCommit(t, r, state)

	state.Round = 3
	if err := m.Apply(mustCommit(t, r, state)); !errors.Is(err, replication.ErrProtocolDesync) {
		t.Fatalf("err = %v, want ErrProtocolDesync", err)
	}
	if err := m.Apply(r.Resync()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if !replication.Equal(r.Published(), m.Root()) {
		t.Fatal("mirror differs from published state after resync")
	}
	if _, ok := m.Root().Lookup(replication.F("items"), replication.K("a")); ok {
		t.Fatal("removed item survived the resync")
	}

	state.Phase = "invest"
	if err := m.Apply(mustCommit(t, r, state)); err != nil {
		t.Fatalf("apply after resync: %v", err)
	}
}

func TestMirror_RejectsSequenceGap(t *testing.T) {
	m := replication.NewMirror()
	err := m.Apply(replication.Batch{Seq: 2})
	if !errors.Is(err, replication.ErrProtocolDesync) {
		t.Fatalf("err = %v, want ErrProtocolDesync", err)
	}
}

func TestMirror_RejectsRemoveOfMissingKey(t *testing.T) {
	m := replication.NewMirror()
	err := m.Apply(replication.Batch{Seq: 1, Ops: []replication.Op{
		{Op: replication.OpRemove, Path: []replication.Step{replication.F("items")}, Key: "ghost"},
	}})
	if !errors.Is(err, replication.ErrProtocolDesync) {
		t.Fatalf("err = %v, want ErrProtocolDesync", err)
	}
}

func TestMirror_KeepsUnknownFields(t *testing.T) {
	m := replication.NewMirror()
	value := &replication.Node{Kind: replication.KindValue, Value: json.RawMessage(`"soon"`)}
	err := m.Apply(replication.Batch{Seq: 1, Ops: []replication.Op{
		{Op: replication.OpChange, Field: "futureFlag", Value: value},
		{Op: "rename", Field: "whatever"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.Root().Lookup(replication.F("futureFlag")); !ok {
		t.Fatal("unknown field was not kept")
	}
}

func TestSnapshot_RejectsNonStructRoot(t *testing.T) {
	if _, err := replication.Snapshot(42); !errors.Is(err, replication.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

var itemKeys = []string{"a", "b", "c", "d", "e"}

func mutate(t *rapid.T, s *testState) {
	switch rapid.IntRange(0, 8).Draw(t, "mutation") {
	case 0:
		s.Phase = rapid.SampledFrom([]string{"lobby", "invest", "trade", "victory"}).Draw(t, "phase")
	case 1:
		s.Round++
	case 2:
		key := rapid.SampledFrom(itemKeys).Draw(t, "add")
		s.Items.Set(key, newItem(key, rapid.IntRange(0, 9).Draw(t, "count")))
	case 3:
		s.Items.Remove(rapid.SampledFrom(itemKeys).Draw(t, "remove"))
	case 4:
		if it, ok := s.Items.Get(rapid.SampledFrom(itemKeys).Draw(t, "item")); ok {
			it.Count = rapid.IntRange(0, 9).Draw(t, "count")
		}
	case 5:
		if it, ok := s.Items.Get(rapid.SampledFrom(itemKeys).Draw(t, "item")); ok {
			tag := rapid.SampledFrom([]string{"x", "y", "z"}).Draw(t, "tag")
			if rapid.Bool().Draw(t, "addTag") {
				it.Tags.Set(tag, tag+"!")
			} else {
				it.Tags.Remove(tag)
			}
		}
	case 6:
		s.Meta.Scores[rapid.SampledFrom(itemKeys).Draw(t, "score")] = rapid.IntRange(-5, 5).Draw(t, "value")
	case 7:
		s.Log.Set(rapid.SampledFrom([]string{"1", "2", "3"}).Draw(t, "log"), rapid.String().Draw(t, "entry"))
	case 8:
		if rapid.Bool().Draw(t, "clear") {
			s.Items.Clear()
		} else {
			s.Meta.Note = rapid.StringN(0, 8, -1).Draw(t, "note")
		}
	}
}

// wire はbatchをJSONで往復させ、ネットワーク越しの受信と同じ形にします。
func wire(t *rapid.T, b replication.Batch) replication.Batch {
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	var out replication.Batch
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	return out
}

func TestReplayedPatchesMatchAuthoritativeState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		state := newTestState()
		r := replication.NewReplicator()
		m := replication.NewMirror()

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for range steps {
			for range rapid.IntRange(1, 3).Draw(t, "batchSize") {
				mutate(t, state)
			}
			b, err := r.Commit(state)
			if err != nil {
				t.Fatalf("commit: %v", err)
			}
			if b.Empty() {
				continue
			}
			if err := m.Apply(wire(t, b)); err != nil {
				t.Fatalf("apply: %v", err)
			}
		}

		want, err := replication.Snapshot(state)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if !replication.Equal(want, m.Root()) {
			t.Fatalf("mirror diverged from state")
		}
	})
}

func TestLateJoinerResyncMatchesIncrementalMirror(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		state := newTestState()
		r := replication.NewReplicator()
		early := replication.NewMirror()

		for range rapid.IntRange(1, 20).Draw(t, "steps") {
			mutate(t, state)
			b, err := r.Commit(state)
			if err != nil {
				t.Fatalf("commit: %v", err)
			}
			if !b.Empty() {
				if err := early.Apply(wire(t, b)); err != nil {
					t.Fatalf("apply: %v", err)
				}
			}
		}

		late := replication.NewMirror()
		for range 2 {
			if err := late.Apply(wire(t, r.Resync())); err != nil {
				t.Fatalf("resync: %v", err)
			}
		}
		if !replication.Equal(early.Root(), late.Root()) {
			t.Fatal("resynced mirror differs from incremental mirror")
		}
		if late.Seq() != r.Seq() {
			t.Fatalf("late seq = %d, want %d", late.Seq(), r.Seq())
		}
	})
}
