package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mahalle/mahalle-api/internal/config"
)

func TestLogSender_Redacts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, NewLogSender(logger, false).Send(context.Background(), Message{Phone: "05551234567", Body: "code 482913"}))
	assert.NotContains(t, buf.String(), "482913")
	assert.NotContains(t, buf.String(), "05551234567")

	buf.Reset()
	require.NoError(t, NewLogSender(logger, true).Send(context.Background(), Message{Phone: "05551234567", Body: "code 482913"}))
	assert.Contains(t, buf.String(), "482913")
}

func TestHTTPSender(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.To == "05550000000" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	s := NewHTTPSender(srv.URL, "key-1", "MAHALLE", 2*time.Second)

	require.NoError(t, s.Send(context.Background(), Message{Phone: "05551234567", Body: "hello"}))
	assert.Equal(t, payload{To: "05551234567", From: "MAHALLE", Text: "hello"}, got)

	err := s.Send(context.Background(), Message{Phone: "05550000000", Body: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSender_ExpiredContext(t *testing.T) {
	s := NewHTTPSender("http://127.0.0.1:1", "", "MAHALLE", time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	assert.ErrorIs(t, s.Send(ctx, Message{Phone: "05551234567"}), context.DeadlineExceeded)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(msgs).Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestKafkaSender(t *testing.T) {
	w := new(mockWriter)
	s := &KafkaSender{writer: w, from: "MAHALLE"}

	w.On("WriteMessages", mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "05551234567" {
			return false
		}
		var p payload
		return json.Unmarshal(msgs[0].Value, &p) == nil && p.Text == "hello" && p.From == "MAHALLE"
	})).Return(nil).Once()
	require.NoError(t, s.Send(context.Background(), Message{Phone: "05551234567", Body: "hello"}))

	w.On("WriteMessages", mock.Anything).Return(errors.New("broker down")).Once()
	assert.ErrorContains(t, s.Send(context.Background(), Message{Phone: "05551234567", Body: "hello"}), "broker down")

	w.On("Close").Return(nil).Once()
	require.NoError(t, s.Close())
	w.AssertExpectations(t)
}

func TestNew_SelectsDriver(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	s, err := New(config.SMS{Driver: DriverLog}, false, logger)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)

	s, err = New(config.SMS{Driver: DriverHTTP, GatewayURL: "http://gw"}, false, logger)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSender{}, s)

	s, err = New(config.SMS{Driver: DriverKafka, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "sms"}, false, logger)
	require.NoError(t, err)
	require.IsType(t, &KafkaSender{}, s)
	require.NoError(t, s.(*KafkaSender).Close())

	_, err = New(config.SMS{Driver: "pigeon"}, false, logger)
	assert.Error(t, err)
}
