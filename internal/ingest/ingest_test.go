package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/hybridrec/internal/artifactstore"
	"github.com/localrivet/hybridrec/internal/catalog"
	"github.com/localrivet/hybridrec/internal/errortypes"
	"github.com/localrivet/hybridrec/internal/vector"
)

func TestReadInteractions(t *testing.T) {
	in := "item,user,interaction\n" +
		"3,alice,1\n" +
		"1,bob,2\n" +
		"3,alice,2.5\n" +
		"1,alice,0\n"

	rows, err := ReadInteractions(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []catalog.Interaction{
		{User: "alice", Item: 3, Count: 3.5},
		{User: "bob", Item: 1, Count: 2},
		{User: "alice", Item: 1, Count: 0},
	}, rows)
}

func TestReadInteractionsSchema(t *testing.T) {
	cases := map[string]string{
		"extra column":      "user,item,interaction,rating\nu,1,1,5\n",
		"missing column":    "user,item\nu,1\n",
		"renamed column":    "user,item,count\nu,1,1\n",
		"non-numeric count": "user,item,interaction\nu,1,many\n",
		"bad item":          "user,item,interaction\nu,x,1\n",
		"negative item":     "user,item,interaction\nu,-2,1\n",
		"ragged row":        "user,item,interaction\nu,1\n",
		"no header":         "",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadInteractions(strings.NewReader(in))
			assert.True(t, errortypes.IsSchemaError(err), "got %v", err)
		})
	}
}

func TestReadItems(t *testing.T) {
	in := "title,id,genre\n\"Toy Story (1995)\",1,animation\nJumanji,0,adventure\n"

	items, err := ReadItems(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []catalog.Item{
		{Index: 1, ID: "1", Title: "Toy Story (1995)"},
		{Index: 0, ID: "0", Title: "Jumanji"},
	}, items)

	_, err = ReadItems(strings.NewReader("id,name\n0,x\n"))
	assert.True(t, errortypes.IsSchemaError(err))

	_, err = ReadItems(strings.NewReader("id,title\n"))
	assert.True(t, errortypes.IsSchemaError(err))
}

func TestReadEmbeddings(t *testing.T) {
	in := "item,v0,v1\n1,0.5,-1\n0,2,3\n"

	m, err := ReadEmbeddings(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Rows())
	assert.Equal(t, 2, m.Dim())
	assert.Equal(t, []float32{2, 3}, m.Row(0))
	assert.Equal(t, []float32{0.5, -1}, m.Row(1))

	for name, bad := range map[string]string{
		"gap":       "item,v0\n0,1\n2,1\n",
		"duplicate": "item,v0\n0,1\n0,2\n",
		"header":    "idx,v0\n0,1\n",
		"no dims":   "item\n0\n",
		"value":     "item,v0\n0,abc\n",
		"empty":     "item,v0\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadEmbeddings(strings.NewReader(bad))
			assert.True(t, errortypes.IsSchemaError(err), "got %v", err)
		})
	}
}

func TestBuildSemantic(t *testing.T) {
	cat := catalog.FromTitles([]string{"a", "b", "c", "a"})
	emb := vector.NewMockEmbedder(8)

	m, err := BuildSemantic(context.Background(), emb, cat, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 8, m.Dim())
	assert.Equal(t, m.Row(0), m.Row(3))
	assert.NotEqual(t, m.Row(0), m.Row(1))

	_, err = BuildSemantic(context.Background(), nil, cat, 2, nil)
	assert.True(t, errortypes.IsEncodingFailed(err))

	_, err = BuildSemantic(context.Background(), emb, catalog.FromTitles(nil), 2, nil)
	assert.True(t, errortypes.IsMissingArtifact(err))
}

type failingEmbedder struct{ *vector.MockEmbedder }

func (failingEmbedder) CreateEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}

func TestBuildSemanticEncoderFailure(t *testing.T) {
	_, err := BuildSemantic(context.Background(), failingEmbedder{}, catalog.FromTitles([]string{"a"}), 1, nil)
	assert.True(t, errortypes.IsEncodingFailed(err), "got %v", err)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestImport(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"items.csv":        "id,title\n0,Alpha\n1,Beta\n2,Gamma\n",
		"interactions.csv": "user,item,interaction\nu1,0,1\nu1,0,1\nu2,2,1\n",
		"collab.csv":       "item,f0,f1\n0,0,0\n1,1,1\n2,2,2\n",
	})

	store := artifactstore.NewSQLiteStore(nil)
	require.NoError(t, store.Initialize(filepath.Join(dir, "artifacts.db")))
	defer store.Close()

	im := &Importer{Store: store, Embedder: vector.NewMockEmbedder(16), BatchSize: 2}
	stats, err := im.Import(context.Background(), Sources{
		Items:         filepath.Join(dir, "items.csv"),
		Interactions:  filepath.Join(dir, "interactions.csv"),
		Collaborative: filepath.Join(dir, "collab.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Items)
	assert.Equal(t, 2, stats.Interactions)
	assert.Equal(t, artifactstore.SpaceStats{Rows: 3, Dim: 16}, stats.Spaces["semantic"])

	bundle, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, bundle.Interactions.ToSlice())
}

func TestImportRejectsInconsistentSources(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"items.csv":        "id,title\n0,Alpha\n1,Beta\n",
		"interactions.csv": "user,item,interaction\nu1,5,1\n",
		"ok.csv":           "user,item,interaction\nu1,1,1\n",
		"collab.csv":       "item,f0\n0,0\n",
		"gappy.csv":        "id,title\n0,Alpha\n2,Gamma\n",
	})
	store := artifactstore.NewSQLiteStore(nil)
	require.NoError(t, store.Initialize(filepath.Join(dir, "artifacts.db")))
	defer store.Close()
	im := &Importer{Store: store, Embedder: vector.NewMockEmbedder(4)}

	path := func(name string) string { return filepath.Join(dir, name) }
	for name, src := range map[string]Sources{
		"item out of range": {Items: path("items.csv"), Interactions: path("interactions.csv"), Collaborative: path("collab.csv")},
		"row mismatch":      {Items: path("items.csv"), Interactions: path("ok.csv"), Collaborative: path("collab.csv")},
		"sparse ids":        {Items: path("gappy.csv"), Interactions: path("ok.csv"), Collaborative: path("collab.csv")},
		"missing file":      {Items: path("nope.csv"), Interactions: path("ok.csv"), Collaborative: path("collab.csv")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := im.Import(context.Background(), src)
			assert.True(t, errortypes.IsSchemaError(err), "got %v", err)
		})
	}
}
