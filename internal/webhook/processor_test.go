package webhook

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kolehiyo/kolehiyo/backend/internal/apperr"
	"github.com/kolehiyo/kolehiyo/backend/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("kolehiyo-webhook-test-secret-32b"))

type recordingStore struct {
	mu       sync.Mutex
	created  []users.ProviderUser
	updated  []users.ProviderUser
	deleted  []string
	failWith error
}

func (s *recordingStore) CreateFromProvider(_ context.Context, user users.ProviderUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.created = append(s.created, user)
	return nil
}

func (s *recordingStore) UpdateFromProvider(_ context.Context, user users.ProviderUser) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	s.updated = append(s.updated, user)
	return 1, nil
}

func (s *recordingStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.deleted = append(s.deleted, userID)
	return nil
}

func newProcessor(t *testing.T, store UserStore, logger *zap.Logger) *Processor {
	t.Helper()
	processor, err := NewProcessor(ProcessorConfig{Secret: testSecret, Users: store, Logger: logger})
	require.NoError(t, err)
	return processor
}

func signedHeaders(t *testing.T, payload []byte) http.Header {
	t.Helper()
	signer, err := svix.NewWebhook(testSecret)
	require.NoError(t, err)

	now := time.Now()
	signature, err := signer.Sign("msg_test", now, payload)
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set(HeaderID, "msg_test")
	headers.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	headers.Set(HeaderSignature, signature)
	return headers
}

func TestProcessUserCreatedPicksPrimaryEmail(t *testing.T) {
	store := &recordingStore{}
	processor := newProcessor(t, store, nil)

	payload := []byte(`{"type":"user.created","data":{"id":"user_1","primary_email_address_id":"em_2",` +
		`"email_addresses":[{"id":"em_1","email_address":"old@example.com"},{"id":"em_2","email_address":"ana@example.com"}],` +
		`"first_name":"Ana","last_name":"Reyes"}}`)

	outcome, err := processor.Process(context.Background(), signedHeaders(t, payload), payload)
	require.NoError(t, err)
	assert.True(t, outcome.Handled)
	assert.Equal(t, EventUserCreated, outcome.EventType)
	require.Len(t, store.created, 1)
	assert.Equal(t, users.ProviderUser{ID: "user_1", Email: "ana@example.com", FullName: "Ana Reyes"}, store.created[0])
}

func TestProcessUserUpdatedAndDeleted(t *testing.T) {
	store := &recordingStore{}
	processor := newProcessor(t, store, nil)

	updated := []byte(`{"type":"user.updated","data":{"id":"user_1","email_addresses":[{"id":"em_1","email_address":"new@example.com"}],"first_name":"Ana","last_name":null}}`)
	_, err := processor.Process(context.Background(), signedHeaders(t, updated), updated)
	require.NoError(t, err)
	require.Len(t, store.updated, 1)
	assert.Equal(t, "new@example.com", store.updated[0].Email)
	assert.Equal(t, "Ana", store.updated[0].FullName)

	deleted := []byte(`{"type":"user.deleted","data":{"id":"user_1","deleted":true}}`)
	outcome, err := processor.Process(context.Background(), signedHeaders(t, deleted), deleted)
	require.NoError(t, err)
	assert.True(t, outcome.Handled)
	assert.Equal(t, []string{"user_1"}, store.deleted)

	anonymous := []byte(`{"type":"user.deleted","data":{"deleted":true}}`)
	outcome, err = processor.Process(context.Background(), signedHeaders(t, anonymous), anonymous)
	require.NoError(t, err)
	assert.False(t, outcome.Handled)
	assert.Len(t, store.deleted, 1)
}

func TestProcessAcknowledgesUnknownEventTypes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := &recordingStore{}
	processor := newProcessor(t, store, zap.New(core))

	payload := []byte(`{"type":"session.created","data":{"id":"sess_1"}}`)
	outcome, err := processor.Process(context.Background(), signedHeaders(t, payload), payload)
	require.NoError(t, err)
	assert.False(t, outcome.Handled)
	assert.Equal(t, 1, logs.FilterMessage("unhandled webhook event type").Len())
	assert.Empty(t, store.created)
}

func TestProcessRejectsMissingHeaders(t *testing.T) {
	processor := newProcessor(t, &recordingStore{}, nil)
	payload := []byte(`{"type":"user.created","data":{}}`)

	headers := signedHeaders(t, payload)
	headers.Del(HeaderSignature)

	_, err := processor.Process(context.Background(), headers, payload)
	require.ErrorIs(t, err, apperr.ErrSignature)
	assert.Equal(t, "webhook.process.missing_headers", apperr.CodeOf(err))
}

func TestProcessRejectsTamperedPayload(t *testing.T) {
	store := &recordingStore{}
	processor := newProcessor(t, store, nil)

	original := []byte(`{"type":"user.deleted","data":{"id":"user_1"}}`)
	tampered := []byte(`{"type":"user.deleted","data":{"id":"user_2"}}`)

	_, err := processor.Process(context.Background(), signedHeaders(t, original), tampered)
	require.ErrorIs(t, err, apperr.ErrSignature)
	assert.Equal(t, "webhook.process.signature_invalid", apperr.CodeOf(err))
	assert.Empty(t, store.deleted)
}

func TestProcessRejectsInvalidEnvelope(t *testing.T) {
	processor := newProcessor(t, &recordingStore{}, nil)

	for _, payload := range [][]byte{[]byte(`not json`), []byte(`{"data":{}}`)} {
		_, err := processor.Process(context.Background(), signedHeaders(t, payload), payload)
		require.ErrorIs(t, err, apperr.ErrValidation)
		assert.Equal(t, "webhook.process.invalid_envelope", apperr.CodeOf(err))
	}
}

func TestProcessReportsHandlerFailureAsPersistence(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	processor := newProcessor(t, &recordingStore{failWith: users.ErrMissingEmail}, zap.New(core))

	payload := []byte(`{"type":"user.created","data":{"id":"user_1","email_addresses":[]}}`)
	_, err := processor.Process(context.Background(), signedHeaders(t, payload), payload)
	require.Error(t, err)
	assert.True(t, errors.Is(apperr.KindOf(err), apperr.ErrPersistence))
	assert.Equal(t, "webhook.dispatch.handler_failed", apperr.CodeOf(err))
	assert.Equal(t, 1, logs.FilterMessage("webhook processor error").Len())
}

func TestProcessWithoutSecretIsUnavailable(t *testing.T) {
	processor, err := NewProcessor(ProcessorConfig{Users: &recordingStore{}})
	require.NoError(t, err)

	payload := []byte(`{"type":"user.created","data":{}}`)
	_, err = processor.Process(context.Background(), signedHeaders(t, payload), payload)
	require.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestNewProcessorRequiresUserStore(t *testing.T) {
	_, err := NewProcessor(ProcessorConfig{Secret: testSecret})
	require.Error(t, err)
}

func TestUserDataPrimaryEmailFallsBackToFirstAddress(t *testing.T) {
	data := UserData{
		PrimaryEmailAddressID: "em_missing",
		EmailAddresses: []EmailAddress{
			{ID: "em_1", EmailAddress: " "},
			{ID: "em_2", EmailAddress: "second@example.com"},
		},
	}
	assert.Equal(t, "second@example.com", data.PrimaryEmail())
	assert.Equal(t, "", UserData{}.PrimaryEmail())
	assert.Equal(t, "", UserData{}.FullName())
}
