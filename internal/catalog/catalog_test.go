package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	Source
	reads atomic.Int32
}

func (s *countingSource) Read() ([]byte, error) {
	s.reads.Add(1)
	return s.Source.Read()
}

func TestEmbeddedCatalog(t *testing.T) {
	cat := New(EmbeddedSource())
	require.NoError(t, cat.Load())

	full, err := cat.DomainsFor(Full)
	require.NoError(t, err)
	reduced, err := cat.DomainsFor(Reduced)
	require.NoError(t, err)

	codes := make([]string, len(full))
	for i, d := range full {
		codes[i] = d.Code
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, codes)

	fullSize, err := cat.Size(Full)
	require.NoError(t, err)
	assert.Equal(t, 88, fullSize)

	reducedSize, err := cat.Size(Reduced)
	require.NoError(t, err)
	assert.Equal(t, 66, reducedSize)

	wantFull := map[string]int{"A": 17, "B": 20, "C": 14, "D": 13, "E": 24}
	wantReduced := map[string]int{"A": 4, "B": 15, "C": 10, "D": 13, "E": 24}
	for _, d := range full {
		assert.Len(t, d.Items, wantFull[d.Code], "full domain %s", d.Code)
	}
	for _, d := range reduced {
		assert.Len(t, d.Items, wantReduced[d.Code], "reduced domain %s", d.Code)
	}

	ids, err := cat.ItemIDsFor(Full)
	require.NoError(t, err)
	for i, id := range ids {
		if ItemID(i+1) != id {
			t.Fatalf("full item order broken at position %d: got %d", i, id)
		}
	}

	item, ok := cat.Item(56)
	require.True(t, ok)
	assert.Equal(t, "STD: maintains, arms free, 20 seconds", item.Description)
	assert.Equal(t, "A: Lying & Rolling", full[0].Label())
}

func TestReducedIsSubsetOfFull(t *testing.T) {
	cat := New(EmbeddedSource())
	require.NoError(t, cat.Load())

	full, err := cat.DomainItemIDs(Full)
	require.NoError(t, err)
	reduced, err := cat.DomainItemIDs(Reduced)
	require.NoError(t, err)

	for title, ids := range reduced {
		fullIDs, ok := full[title]
		require.True(t, ok, "reduced domain %q missing from full variant", title)
		assert.Subset(t, fullIDs, ids, "domain %q", title)
	}
}

const orderedDefinition = `
Z:
  title: "Last Letter First"
  items:
    - {number: 10, description: "ten", gmfm66: true}
    - {number: 11, description: "eleven", gmfm66: false}
A:
  title: "Only Full"
  items:
    - {number: 1, description: "one", gmfm66: false}
M:
  dimension: M2
  title: "Middle"
  items:
    - {number: 5, description: "five", gmfm66: true}
`

func TestDeclaredOrderAndEmptyDomains(t *testing.T) {
	cat := New(BytesSource("test", []byte(orderedDefinition)))

	full, err := cat.DomainsFor(Full)
	require.NoError(t, err)
	require.Len(t, full, 3)
	assert.Equal(t, "Z", full[0].Code)
	assert.Equal(t, "A", full[1].Code)
	assert.Equal(t, "M2", full[2].Code)

	reduced, err := cat.DomainsFor(Reduced)
	require.NoError(t, err)
	require.Len(t, reduced, 2, "domain without reduced items must be dropped")
	assert.Equal(t, "Z", reduced[0].Code)
	assert.Equal(t, []ItemID{10}, reduced[0].ItemIDs())
	assert.Equal(t, "M2", reduced[1].Code)

	ids, err := cat.ItemIDsFor(Reduced)
	require.NoError(t, err)
	assert.Equal(t, []ItemID{10, 5}, ids)
}

func TestJSONDefinition(t *testing.T) {
	data := `{"B": {"title": "Second", "items": [{"number": 2, "description": "two", "gmfm66": true}]}, ` +
		`"A": {"title": "First", "items": [{"number": 1, "description": "one", "gmfm66": true}]}}`
	cat := New(BytesSource("json", []byte(data)))

	domains, err := cat.DomainsFor(Full)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "B", domains[0].Code)
	assert.Equal(t, "Second", domains[0].Title)
}

func TestLoadIsIdempotent(t *testing.T) {
	src := &countingSource{Source: EmbeddedSource()}
	cat := New(src)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cat.Load())
			_, err := cat.DomainsFor(Reduced)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, cat.Load())
	assert.Equal(t, int32(1), src.reads.Load())

	first, err := cat.DomainsFor(Full)
	require.NoError(t, err)
	second, err := cat.DomainsFor(Full)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAccessorsLoadOnFirstUse(t *testing.T) {
	src := &countingSource{Source: EmbeddedSource()}
	cat := New(src)

	ids, err := cat.ItemIDsFor(Full)
	require.NoError(t, err)
	assert.Len(t, ids, 88)
	assert.Equal(t, int32(1), src.reads.Load())

	_, ok := cat.Item(1)
	assert.True(t, ok)
	require.NoError(t, cat.Load())
	assert.Equal(t, int32(1), src.reads.Load())

	broken := New(BytesSource("bad", []byte("A: [unclosed")))
	_, err = broken.DomainItemIDs(Full)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestReturnedDomainsAreCopies(t *testing.T) {
	cat := New(EmbeddedSource())

	domains, err := cat.DomainsFor(Full)
	require.NoError(t, err)
	domains[0].Items[0].Description = "changed"
	domains[0].Title = "changed"

	again, err := cat.DomainsFor(Full)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", again[0].Title)
	assert.NotEqual(t, "changed", again[0].Items[0].Description)
}

func TestUnknownScaleVariant(t *testing.T) {
	cat := New(EmbeddedSource())

	_, err := cat.DomainsFor(ScaleVariant("77"))
	assert.True(t, errors.Is(err, ErrUnknownScaleVariant))

	_, err = cat.ItemIDsFor("")
	assert.ErrorIs(t, err, ErrUnknownScaleVariant)
}

func TestParseScaleVariant(t *testing.T) {
	cases := map[string]ScaleVariant{
		"reduced": Reduced,
		"66":      Reduced,
		"GMFM-66": Reduced,
		"full":    Full,
		" 88 ":    Full,
		"gmfm88":  Full,
	}
	for in, want := range cases {
		got, err := ParseScaleVariant(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseScaleVariant("99")
	assert.ErrorIs(t, err, ErrUnknownScaleVariant)
	assert.Equal(t, "66", Reduced.ShortName())
	assert.Equal(t, "88", Full.ShortName())
}

func TestCatalogUnavailable(t *testing.T) {
	cases := map[string]Source{
		"missing file":   FileSource(filepath.Join(t.TempDir(), "nope.yaml")),
		"not a mapping":  BytesSource("list", []byte("- 1\n- 2\n")),
		"malformed":      BytesSource("bad", []byte("A: [unclosed")),
		"empty":          BytesSource("empty", []byte("")),
		"no title":       BytesSource("title", []byte("A:\n  items: []\n")),
		"duplicate item": BytesSource("dup", []byte("A:\n  title: a\n  items: [{number: 1}]\nB:\n  title: b\n  items: [{number: 1}]\n")),
		"zero item":      BytesSource("zero", []byte("A:\n  title: a\n  items: [{number: 0}]\n")),
		"no source":      nil,
	}

	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			cat := New(src)
			err := cat.Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCatalogUnavailable)

			_, err = cat.DomainsFor(Full)
			assert.ErrorIs(t, err, ErrCatalogUnavailable)

			_, ok := cat.Item(1)
			assert.False(t, ok)
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(orderedDefinition), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cat := New(FileSource(path))
	if err := cat.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	size, err := cat.Size(Full)
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 4 {
		t.Errorf("expected 4 items, got %d", size)
	}
}
