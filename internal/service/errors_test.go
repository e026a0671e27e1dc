package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPermanent(t *testing.T) {
	base := errors.New("boom")

	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(base))
	assert.False(t, IsPermanent(Transient("upload", base)))
	assert.False(t, IsPermanent(RateLimited("insights", base)))
	assert.True(t, IsPermanent(InvalidCredential("token", base)))
	assert.True(t, IsPermanent(MediaRejected("transcode", base)))
	assert.True(t, IsPermanent(EncodingFailed("poll", base)))
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("publish post 7: %w", MediaRejected("transcode", errors.New("bad codec")))

	assert.Equal(t, KindMediaRejected, KindOf(err))
	assert.Contains(t, err.Error(), "transcode: bad codec")
}

func TestClassifyNetwork_Timeout(t *testing.T) {
	err := classifyNetwork("head", context.DeadlineExceeded)

	assert.Equal(t, KindTransientNetwork, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
