package hints

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []CategoryHints
		want    string
	}{
		{
			name: "keys keep entry order",
			entries: []CategoryHints{
				{Category: "Zulu", Keywords: []string{"z"}},
				{Category: "Alpha", Keywords: []string{"a", "b"}},
			},
			want: `{"Zulu":["z"],"Alpha":["a","b"]}`,
		},
		{
			name:    "nil keywords encode as empty list",
			entries: []CategoryHints{{Category: "Empty"}},
			want:    `{"Empty":[]}`,
		},
		{
			name:    "no entries",
			entries: nil,
			want:    `{}`,
		},
		{
			name:    "category names are escaped",
			entries: []CategoryHints{{Category: `Say "hi"`, Keywords: []string{"x"}}},
			want:    `{"Say \"hi\"":["x"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalEntries(tt.entries)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestUnmarshalEntries(t *testing.T) {
	t.Run("object key order survives decoding", func(t *testing.T) {
		entries, err := UnmarshalEntries([]byte(`{"Zulu":["z"],"Alpha":["a"],"Mike":[]}`))
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "Zulu", entries[0].Category)
		assert.Equal(t, "Alpha", entries[1].Category)
		assert.Equal(t, "Mike", entries[2].Category)
	})

	t.Run("duplicate key keeps first position and last value", func(t *testing.T) {
		entries, err := UnmarshalEntries([]byte(`{"A":["old"],"B":["b"],"A":["new"]}`))
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "A", entries[0].Category)
		assert.Equal(t, []string{"new"}, entries[0].Keywords)
	})

	t.Run("indented document decodes the same", func(t *testing.T) {
		doc := "{\n  \"Food\": [\n    \"restaurant\"\n  ]\n}\n"
		entries, err := UnmarshalEntries([]byte(doc))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []string{"restaurant"}, entries[0].Keywords)
	})

	t.Run("rejects a non-object document", func(t *testing.T) {
		_, err := UnmarshalEntries([]byte(`["Food"]`))
		assert.Error(t, err)
	})

	t.Run("rejects malformed keywords", func(t *testing.T) {
		_, err := UnmarshalEntries([]byte(`{"Food":"restaurant"}`))
		assert.Error(t, err)
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file loads as empty", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
		entries, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("save then load round-trips order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "patterns", "category_patterns.json")
		store := NewFileStore(path)

		in := []CategoryHints{
			{Category: "Travel", Keywords: []string{"uber", "lyft"}},
			{Category: "Food", Keywords: []string{"restaurant"}},
		}
		require.NoError(t, store.Save(ctx, in))

		out, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("saved document is indented", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "category_patterns.json")
		store := NewFileStore(path)
		require.NoError(t, store.Save(ctx, []CategoryHints{{Category: "Food", Keywords: []string{"meal"}}}))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "\n  \"Food\"")
	})

	t.Run("corrupt file surfaces an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "category_patterns.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, err := NewFileStore(path).Load(ctx)
		assert.Error(t, err)
	})
}

func TestBoltStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty database loads as empty", func(t *testing.T) {
		store, err := NewBoltStore(filepath.Join(t.TempDir(), "hints.db"))
		require.NoError(t, err)
		defer store.Close()

		entries, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("save then load round-trips order", func(t *testing.T) {
		store, err := NewBoltStore(filepath.Join(t.TempDir(), "hints.db"))
		require.NoError(t, err)
		defer store.Close()

		in := []CategoryHints{
			{Category: "Utilities", Keywords: []string{"electric"}},
			{Category: "Travel", Keywords: []string{"taxi"}},
		}
		require.NoError(t, store.Save(ctx, in))

		out, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}
