package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionPost(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{PostStatusQueued, PostStatusProcessing, true},
		{PostStatusProcessing, PostStatusPublished, true},
		{PostStatusProcessing, PostStatusFailed, true},
		{PostStatusProcessing, PostStatusQueued, true},
		{PostStatusFailed, PostStatusQueued, true},
		{PostStatusQueued, PostStatusPublished, false},
		{PostStatusFailed, PostStatusProcessing, false},
		{PostStatusPublished, PostStatusQueued, false},
		{PostStatusPublished, PostStatusFailed, false},
		{PostStatusQueued, PostStatusFailed, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransitionPost(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestBuildCaption(t *testing.T) {
	assert.Equal(t, "hello", BuildCaption("hello", nil))
	assert.Equal(t, "hello\n\n#sun #sea", BuildCaption("hello", []string{"sun", "#sea"}))
	assert.Equal(t, "#sun", BuildCaption("", []string{" sun ", ""}))
	assert.Equal(t, "hello", BuildCaption("hello", []string{"  "}))
}

func TestDetectPostType(t *testing.T) {
	assert.Equal(t, PostTypeReel, DetectPostType("video/mp4"))
	assert.Equal(t, PostTypeReel, DetectPostType("video/quicktime"))
	assert.Equal(t, PostTypeImage, DetectPostType("image/png"))
	assert.Equal(t, PostTypeImage, DetectPostType(""))
}
