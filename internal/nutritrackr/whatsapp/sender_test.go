package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdobrica/nutritrackr/common/retry"
)

var fastRetry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestSender_Send(t *testing.T) {
	var got outboundMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17.0/PHONE123/messages", r.URL.Path)
		assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.x"}]}`))
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{Token: "wa-token", PhoneID: "PHONE123", APIBase: srv.URL + "/v17.0/", Retry: fastRetry})
	require.NoError(t, s.Send(context.Background(), "2348012345678", "Here is your plan"))

	assert.Equal(t, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               "2348012345678",
		Type:             "text",
		Text:             outboundText{PreviewURL: false, Body: "Here is your plan"},
	}, got)
}

func TestSender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{Token: "t", PhoneID: "p", APIBase: srv.URL, Retry: fastRetry})
	require.NoError(t, s.Send(context.Background(), "1", "hi"))
	assert.EqualValues(t, 3, calls.Load())
}

func TestSender_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{Token: "t", PhoneID: "p", APIBase: srv.URL, Retry: fastRetry})
	err := s.Send(context.Background(), "1", "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid recipient")
	assert.EqualValues(t, 1, calls.Load())
}

func TestSender_TruncatesBody(t *testing.T) {
	var got outboundMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{Token: "t", PhoneID: "p", APIBase: srv.URL, Retry: fastRetry})
	require.NoError(t, s.Send(context.Background(), "1", strings.Repeat("é", MaxBodyChars+10)))
	assert.Equal(t, MaxBodyChars, len([]rune(got.Text.Body)))
}
