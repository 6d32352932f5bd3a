package store

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerValueJSON(t *testing.T) {
	var answers map[string]Answer
	err := json.Unmarshal([]byte(`{
		"q1": {"questionId": "q1", "value": "The mayor", "updatedAt": "2023-10-27T09:30:00.123Z"},
		"q2": {"questionId": "q2", "value": true, "updatedAt": "2023-10-27T09:30:00.123Z"},
		"q3": {"questionId": "q3", "value": false, "updatedAt": "2023-10-27T09:30:00.123Z"}
	}`), &answers)
	require.NoError(t, err)

	assert.Equal(t, "The mayor", answers["q1"].Value.String())
	assert.False(t, answers["q1"].Value.IsBool())
	assert.True(t, answers["q2"].Value.Bool())
	assert.True(t, answers["q3"].Value.IsBool())
	assert.False(t, answers["q3"].Value.Answered())
	assert.Equal(t, testNow, answers["q1"].UpdatedAt)

	out, err := json.Marshal(answers["q2"].Value)
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(out))

	out, err = json.Marshal(TextValue("x"))
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(out))

	var v AnswerValue
	assert.Error(t, json.Unmarshal([]byte(`42`), &v))
}

func TestAnswered(t *testing.T) {
	assert.False(t, TextValue("").Answered())
	assert.True(t, TextValue("yes").Answered())
	assert.False(t, BoolValue(false).Answered())
	assert.True(t, BoolValue(true).Answered())
}

func TestTemplateCloneIsIndependent(t *testing.T) {
	tmpl := testTemplate()
	clone := tmpl.Clone()

	tmpl.Questions[0].Text = "changed"
	tmpl.Questions = append(tmpl.Questions, Question{ID: "q9"})

	assert.Equal(t, "Who is involved?", clone.Questions[0].Text)
	assert.Len(t, clone.Questions, 3)
}

func TestStoryValidate(t *testing.T) {
	story := newTestStory("s1")
	require.NoError(t, story.Validate())

	noUUID := story.Clone()
	noUUID.UUID = ""
	assert.ErrorIs(t, noUUID.Validate(), ErrInvalidStory)

	badKey := story.Clone()
	badKey.Answers["q1"] = Answer{QuestionID: "q2", Value: TextValue("x")}
	assert.ErrorIs(t, badKey.Validate(), ErrInvalidStory)

	badStatus := story.Clone()
	badStatus.Status = ""
	assert.ErrorIs(t, badStatus.Validate(), ErrInvalidStory)
}

func TestMediaCloneKeepsEmptyBlob(t *testing.T) {
	empty := (&MediaItem{Blob: []byte{}}).Clone()
	assert.NotNil(t, empty.Blob)
	assert.Empty(t, empty.Blob)

	assert.Nil(t, (&MediaItem{}).Clone().Blob)

	item := &MediaItem{Blob: []byte{1, 2}}
	clone := item.Clone()
	item.Blob[0] = 9
	assert.Equal(t, []byte{1, 2}, clone.Blob)
}
