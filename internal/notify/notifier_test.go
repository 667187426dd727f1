package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarkNotifierSendsTitleAndBody(t *testing.T) {
	var gotTitle, gotBody, gotGroup string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.URL.Query().Get("title")
		gotBody = r.URL.Query().Get("body")
		gotGroup = r.URL.Query().Get("group")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewBarkNotifier(srv.URL)
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "Recurring task finished", "details"))
	assert.Equal(t, "Recurring task finished", gotTitle)
	assert.Equal(t, "details", gotBody)
	assert.Equal(t, "taskcycle", gotGroup)
}

func TestBarkNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := NewBarkNotifier(srv.URL)
	require.NoError(t, err)
	assert.Error(t, n.Send(context.Background(), "t", "b"))
}

func TestBarkNotifierRequiresURL(t *testing.T) {
	_, err := NewBarkNotifier("")
	assert.Error(t, err)
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Send(ctx context.Context, title, body string) error {
	r.calls++
	return r.err
}

func TestMultiNotifierContinuesOnError(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	multi := NewMultiNotifier(failing, ok)

	err := multi.Send(context.Background(), "t", "b")
	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}
