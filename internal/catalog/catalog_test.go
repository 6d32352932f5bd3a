package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adieyal/pocketreporter2/internal/files"
	"github.com/adieyal/pocketreporter2/internal/store"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.NotEmpty(t, c.Categories)
	require.NotEmpty(t, c.StoryTypes)

	tmpl, err := c.Template("court-case")
	require.NoError(t, err)
	assert.Equal(t, "Court Case", tmpl.Name)

	tip, ok := tmpl.Question("tip-docket")
	require.True(t, ok)
	assert.True(t, tip.IsTip)

	community := c.TemplatesInCategory("community")
	require.Len(t, community, 2)
	assert.Equal(t, "protest", community[0].ID)
	assert.Empty(t, c.TemplatesInCategory("nope"))

	cat, ok := c.Category("justice")
	require.True(t, ok)
	assert.Equal(t, "Courts & Justice", cat.Name)
}

func TestTemplateSnapshotIsIndependent(t *testing.T) {
	c := Default()

	snapshot, err := c.Template("protest")
	require.NoError(t, err)
	snapshot.Name = "Edited"
	snapshot.Questions[0].Text = "Edited question"

	again, err := c.Template("protest")
	require.NoError(t, err)
	assert.Equal(t, "Protest", again.Name)
	assert.Equal(t, "Who is protesting?", again.Questions[0].Text)

	// And the other way around: editing the catalog leaves earlier snapshots alone.
	c.StoryTypes[1].Questions[0].Text = "Catalog changed"
	assert.Equal(t, "Edited question", snapshot.Questions[0].Text)
	assert.Equal(t, "Who is protesting?", again.Questions[0].Text)
}

func TestUnknownTemplate(t *testing.T) {
	_, err := Default().Template("missing")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestParseRejectsBrokenCatalog(t *testing.T) {
	_, err := Parse([]byte(`{"categories": [`))
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = Parse([]byte(`{
		"categories": [{"id": "a", "name": "A"}, {"id": "a", "name": "A again"}],
		"storyTypes": [
			{"id": "t1", "categoryId": "zzz", "name": "T1", "questions": [
				{"id": "q", "text": "?", "type": "text"},
				{"id": "q", "text": "?", "type": "text"},
				{"id": "r", "text": "?", "type": "radio"}
			]}
		]
	}`))
	require.ErrorIs(t, err, ErrInvalidCatalog)
	for _, want := range []string{`duplicate id "a"`, `unknown category "zzz"`, `duplicate id "q"`, `unknown type "radio"`} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadFromVault(t *testing.T) {
	v, err := files.NewMemVault()
	require.NoError(t, err)
	require.NoError(t, v.Write("config/templates.json", []byte(`{
		"categories": [{"id": "x", "name": "X"}],
		"storyTypes": [{"id": "t", "categoryId": "x", "name": "T", "questions": [
			{"id": "q1", "text": "Q?", "type": "checkbox"}
		]}]
	}`)))

	c, err := Load(v, "config/templates.json")
	require.NoError(t, err)
	tmpl, err := c.Template("t")
	require.NoError(t, err)
	assert.Equal(t, store.QuestionCheckbox, tmpl.Questions[0].Type)

	_, err = Load(v, "missing.json")
	assert.Error(t, err)
}
