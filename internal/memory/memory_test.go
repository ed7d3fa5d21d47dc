package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingMemory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	wm := NewWorkingMemory(3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, wm.Append(ctx, "s1", Turn{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}))
	}
	turns, err := wm.Turns(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []Turn{{RoleUser, "m3"}, {RoleUser, "m4"}, {RoleUser, "m5"}}, turns)

	other, err := wm.Turns(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, wm.Clear(ctx, "s1"))
	turns, _ = wm.Turns(ctx, "s1")
	assert.Empty(t, turns)
}

func TestWorkingMemory_ConcurrentAppendsStayBounded(t *testing.T) {
	ctx := context.Background()
	wm := NewWorkingMemory(DefaultMaxTurns)

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(s, i int) {
				defer wg.Done()
				_ = wm.Append(ctx, fmt.Sprintf("s%d", s), Turn{Role: RoleUser, Content: "x"})
			}(s, i)
		}
	}
	wg.Wait()

	for s := 0; s < 4; s++ {
		turns, err := wm.Turns(ctx, fmt.Sprintf("s%d", s))
		require.NoError(t, err)
		assert.Len(t, turns, DefaultMaxTurns)
	}
}

func TestSummarize(t *testing.T) {
	turns := []Turn{
		{RoleUser, "Hallo   zusammen\n"},
		{RoleAssistant, "Guten Tag!"},
	}
	assert.Equal(t, "user: Hallo zusammen | assistant: Guten Tag!", Summarize(turns, 400))
	assert.Equal(t, "", Summarize(nil, 400))

	got := Summarize(turns, 15)
	assert.Equal(t, "user: Hallo...", got)
	assert.LessOrEqual(t, len([]rune(got)), 15)
}

func TestSummarize_CountsRunes(t *testing.T) {
	turns := []Turn{{RoleUser, strings.Repeat("ü", 20)}}
	got := Summarize(turns, 10)
	assert.Equal(t, "user: ü...", got)
}

func TestBuildContext_DropsTurnsThenSnippetsThenSummary(t *testing.T) {
	turns := []Turn{{RoleUser, "aaaa"}, {RoleAssistant, "bbbb"}}
	snippets := []Snippet{{ID: "1", Text: "xxxxxxxxxx", Score: 0.9}, {ID: "2", Text: "yyyyyyyyyy", Score: 0.5}}
	summary := strings.Repeat("s", 30)

	// 8+13 (turns) + 30 + 20 = 71
	full := BuildContext(turns, summary, snippets, 100)
	assert.Equal(t, 71, full.Size())
	assert.Equal(t, turns, full.Turns)

	p := BuildContext(turns, summary, snippets, 65)
	assert.Equal(t, []Turn{{RoleAssistant, "bbbb"}}, p.Turns)
	assert.Len(t, p.Snippets, 2)

	p = BuildContext(turns, summary, snippets, 45)
	assert.Empty(t, p.Turns)
	assert.Len(t, p.Snippets, 1)
	assert.Equal(t, "1", p.Snippets[0].ID)

	p = BuildContext(turns, summary, snippets, 24)
	assert.Empty(t, p.Turns)
	assert.Empty(t, p.Snippets)
	assert.Equal(t, strings.Repeat("s", 8), p.Summary)
}

func TestBuildContext_DoesNotMutateInputs(t *testing.T) {
	turns := []Turn{{RoleUser, "aaaa"}, {RoleAssistant, "bbbb"}}
	snippets := []Snippet{{ID: "1", Text: "xxxx"}}
	_ = BuildContext(turns, "", snippets, 0)
	assert.Len(t, turns, 2)
	assert.Len(t, snippets, 1)
}

func TestBuildContext_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genTurns := gen.SliceOf(gen.AlphaString()).Map(func(xs []string) []Turn {
		out := make([]Turn, len(xs))
		for i, x := range xs {
			out[i] = Turn{Role: RoleUser, Content: x}
		}
		return out
	})
	genSnippets := gen.SliceOf(gen.AlphaString()).Map(func(xs []string) []Snippet {
		out := make([]Snippet, len(xs))
		for i, x := range xs {
			out[i] = Snippet{ID: fmt.Sprint(i), Text: x}
		}
		return out
	})

	properties.Property("trimming never grows the package", prop.ForAll(
		func(turns []Turn, summary string, snippets []Snippet, budget int) bool {
			before := Package{Turns: turns, Summary: summary, Snippets: snippets}.Size()
			return BuildContext(turns, summary, snippets, budget).Size() <= before
		},
		genTurns, gen.AlphaString(), genSnippets, gen.IntRange(0, 500),
	))

	properties.Property("large budget returns the input unchanged", prop.ForAll(
		func(turns []Turn, summary string, snippets []Snippet) bool {
			in := Package{Turns: turns, Summary: summary, Snippets: snippets}
			out := BuildContext(turns, summary, snippets, in.Size())
			return out.Size() == in.Size() && len(out.Turns) == len(turns) && len(out.Snippets) == len(snippets) && out.Summary == summary
		},
		genTurns, gen.AlphaString(), genSnippets,
	))

	properties.Property("deterministic", prop.ForAll(
		func(turns []Turn, summary string, snippets []Snippet, budget int) bool {
			a := BuildContext(turns, summary, snippets, budget)
			b := BuildContext(turns, summary, snippets, budget)
			return a.Size() == b.Size() && a.Summary == b.Summary && len(a.Turns) == len(b.Turns)
		},
		genTurns, gen.AlphaString(), genSnippets, gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}

func testIndexes(t *testing.T) map[string]SnippetIndex {
	t.Helper()
	sq, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "snippets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]SnippetIndex{"memory": NewIndex(), "sqlite": sq}
}

func TestSummarize_TinyCapNeverExceeded(t *testing.T) {
	turns := []Turn{{RoleUser, "Hallo"}}
	for _, n := range []int{1, 2, 3} {
		got := Summarize(turns, n)
		assert.Equal(t, string([]rune("user: Hallo")[:n]), got)
		assert.Len(t, []rune(got), n)
	}
	assert.Equal(t, "u...", Summarize(turns, 4))
}

func TestIndex_ConcurrentReplaceAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	require.NoError(t, idx.Upsert(ctx, "acme", "KB-ACME-HOURS", "Montag bis Freitag"))
	require.NoError(t, idx.Upsert(ctx, "acme", "KB-ACME-DAYS", "Montag"))

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = idx.Upsert(ctx, "acme", "KB-ACME-HOURS", fmt.Sprintf("Montag Variante %d", i))
		}(i)
		go func() {
			defer wg.Done()
			got, err := idx.Search(ctx, "acme", "Montag", 3)
			assert.NoError(t, err)
			assert.Len(t, got, 2)
		}()
	}
	wg.Wait()

	got, err := idx.Search(ctx, "acme", "Montag", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// replacement keeps the original position
	assert.Equal(t, "KB-ACME-DAYS", got[0].ID)
	assert.Equal(t, "KB-ACME-HOURS", got[1].ID)
}

func TestSnippetIndex_Search(t *testing.T) {
	for name, idx := range testIndexes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Upsert(ctx, "acme", "KB-ACME-HOURS", "Öffnungszeiten Montag bis Freitag"))
			require.NoError(t, idx.Upsert(ctx, "acme", "KB-ACME-PRICE", "Preise ab 20 Euro"))
			require.NoError(t, idx.Upsert(ctx, "acme", "KB-ACME-DAYS", "Montag Freitag"))
			require.NoError(t, idx.Upsert(ctx, "globex", "KB-GLOBEX-X", "Montag"))

			got, err := idx.Search(ctx, "acme", "Habt ihr am Montag offen?", 3)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "KB-ACME-DAYS", got[0].ID)
			assert.InDelta(t, 0.5, got[0].Score, 1e-9)
			assert.Equal(t, "KB-ACME-HOURS", got[1].ID)
			assert.InDelta(t, 0.25, got[1].Score, 1e-9)

			got, err = idx.Search(ctx, "acme", "Montag", 1)
			require.NoError(t, err)
			require.Len(t, got, 1)

			got, err = idx.Search(ctx, "acme", "", 3)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, idx.Upsert(ctx, "acme", "KB-ACME-DAYS", "Samstag"))
			require.NoError(t, idx.Reset(ctx, "globex"))
			got, err = idx.Search(ctx, "globex", "Montag", 3)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestSnippetIndex_TiesKeepInsertionOrder(t *testing.T) {
	for name, idx := range testIndexes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Upsert(ctx, "t", "b", "termin"))
			require.NoError(t, idx.Upsert(ctx, "t", "a", "termin"))
			got, err := idx.Search(ctx, "t", "termin", 3)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "b", got[0].ID)
			assert.Equal(t, "a", got[1].ID)
		})
	}
}

func TestRedisTurnStore_Integration(t *testing.T) {
	store := NewRedisTurnStore("localhost:6379", 2, 0)
	defer store.Close()
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	session := "nexus-test-session"
	require.NoError(t, store.Clear(ctx, session))
	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, store.Append(ctx, session, Turn{Role: RoleUser, Content: c}))
	}
	turns, err := store.Turns(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, []Turn{{RoleUser, "b"}, {RoleUser, "c"}}, turns)
	require.NoError(t, store.Clear(ctx, session))
}
