package ytdlp

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytmp3convert/internal/core/domain"
)

func fakeRunner(out string, err error, gotArgs *[]string) runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*gotArgs = append([]string{name}, args...)
		return []byte(out), err
	}
}

func TestConvert_FirstURLWins(t *testing.T) {
	var args []string
	c := NewYtDlpConverter("yt-dlp")
	c.run = fakeRunner("m4a\nhttps://rr1.googlevideo.com/a\nhttps://rr1.googlevideo.com/b\n", nil, &args)

	st, err := c.Convert(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOK, st.Status)
	assert.Equal(t, "https://rr1.googlevideo.com/a", st.Link)
	assert.Equal(t, "m4a", st.Ext)
	assert.Equal(t, []string{
		"yt-dlp", "-f", "bestaudio[ext=mp3]/bestaudio[ext=m4a]/bestaudio",
		"--print", "ext", "--print", "urls", "--no-warnings", "--no-playlist",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}, args)
}

func TestConvert_ExtensionFromLinkMime(t *testing.T) {
	var args []string
	c := NewYtDlpConverter("yt-dlp")
	c.run = fakeRunner("https://rr1.googlevideo.com/videoplayback?itag=251&mime=audio%2Fwebm&dur=213\n", nil, &args)

	st, err := c.Convert(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "webm", st.Ext)
}

func TestConvert_FailureIsAnExplicitFail(t *testing.T) {
	var args []string
	c := NewYtDlpConverter("yt-dlp")

	c.run = fakeRunner("", errors.New("exit status 1, stderr: Video unavailable"), &args)
	st, err := c.Convert(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, st.Failed())
	assert.Contains(t, st.Message, "Video unavailable")

	c.run = fakeRunner("  \n", nil, &args)
	st, err = c.Convert(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, st.Failed())
}

func TestConvert_MissingBinaryIsTransportError(t *testing.T) {
	var args []string
	c := NewYtDlpConverter("yt-dlp")
	c.run = fakeRunner("", &exec.Error{Name: "yt-dlp", Err: exec.ErrNotFound}, &args)

	_, err := c.Convert(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, domain.ErrTransport)
}
