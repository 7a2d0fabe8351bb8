package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/crm-dispatch/internal/dispatch"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockContactSource struct {
	mock.Mock
}

func (m *MockContactSource) Get(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

type MockEmailLog struct {
	mock.Mock
}

func (m *MockEmailLog) Save(ctx context.Context, contactID int64, msg model.Message, sentAt time.Time) error {
	return m.Called(ctx, contactID, msg, sentAt).Error(0)
}

type MockDispatchRepository struct {
	mock.Mock
}

func (m *MockDispatchRepository) Create(ctx context.Context, report *model.DispatchReport) (*model.DispatchReport, error) {
	args := m.Called(ctx, report)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DispatchReport), args.Error(1)
}

func (m *MockDispatchRepository) Get(ctx context.Context, id string) (*model.DispatchReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DispatchReport), args.Error(1)
}

func (m *MockDispatchRepository) List(ctx context.Context, f model.DispatchFilter) ([]*model.DispatchReport, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.DispatchReport), args.Get(1).(int64), args.Error(2)
}

func (m *MockDispatchRepository) Stats(ctx context.Context, f model.DispatchFilter) (*model.DispatchStats, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DispatchStats), args.Error(1)
}

// stubEmail fails every recipient whose address is listed in fail.
type stubEmail struct {
	fail map[string]bool
}

func (s stubEmail) Channel() model.Channel { return model.ChannelEmail }

func (s stubEmail) Send(_ context.Context, r model.Recipient, msg model.Message) (dispatch.Delivery, error) {
	if s.fail[r.Email] {
		return dispatch.Delivery{}, errs.Transport(500, "mailbox unavailable")
	}
	return dispatch.Delivery{MessageID: "<" + msg.Subject + ">"}, nil
}

var emailTemplate = model.Message{Subject: "Bonjour [Prénom]", Body: "Offre pour [Entreprise]"}

func TestDispatchService_ResolvesContactsInOrder(t *testing.T) {
	contacts := new(MockContactSource)
	contacts.On("Get", mock.Anything, "2").Return(&model.Contact{ID: 2, Prenom: "Bako", Email: "bako@ex.mg"}, nil)
	contacts.On("Get", mock.Anything, "1").Return(&model.Contact{ID: 1, Prenom: "Ana", Email: "ana@ex.mg", Entreprise: "Telma"}, nil)
	emailLog := new(MockEmailLog)
	emailLog.On("Save", mock.Anything, int64(1), model.Message{Subject: "Bonjour Ana", Body: "Offre pour Telma"}, mock.Anything).Return(nil).Once()
	repo := new(MockDispatchRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(&model.DispatchReport{ID: "d-1"}, nil)

	engine := dispatch.NewEngine(dispatch.WithSender(stubEmail{fail: map[string]bool{"bako@ex.mg": true}}))
	svc := NewDispatchService(engine, contacts, emailLog, repo)

	report, err := svc.Dispatch(context.Background(), model.DispatchRequest{
		Channel:    model.ChannelEmail,
		ContactIDs: []int64{1, 2},
		Template:   emailTemplate,
	})
	require.NoError(t, err)

	assert.Equal(t, "d-1", report.ID)
	assert.False(t, report.OverallSucceeded)
	assert.Equal(t, "1/2 sent, rest failed", report.Summary)
	require.Len(t, report.Results, 2)
	assert.Equal(t, int64(1), report.Results[0].RecipientID)
	assert.Equal(t, "<Bonjour Ana>", report.Results[0].ProviderMessageID)
	assert.Equal(t, int64(2), report.Results[1].RecipientID)
	assert.Equal(t, "mailbox unavailable", report.Results[1].ErrorDetail)

	contacts.AssertExpectations(t)
	emailLog.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestDispatchService_SkipsMissingContacts(t *testing.T) {
	contacts := new(MockContactSource)
	contacts.On("Get", mock.Anything, "1").Return(&model.Contact{ID: 1, Email: "ana@ex.mg"}, nil)
	contacts.On("Get", mock.Anything, "9").Return(nil, errs.Transport(404, "Contact introuvable"))

	engine := dispatch.NewEngine(dispatch.WithSender(stubEmail{}))
	report, err := NewDispatchService(engine, contacts, nil, nil).Dispatch(context.Background(), model.DispatchRequest{
		Channel:    model.ChannelEmail,
		ContactIDs: []int64{9, 1},
		Template:   emailTemplate,
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.OverallSucceeded)
}

func TestDispatchService_NoContactFound(t *testing.T) {
	contacts := new(MockContactSource)
	contacts.On("Get", mock.Anything, "9").Return(nil, errs.NotFound("resource not found"))

	_, err := NewDispatchService(dispatch.NewEngine(), contacts, nil, nil).Dispatch(context.Background(), model.DispatchRequest{
		Channel:    model.ChannelEmail,
		ContactIDs: []int64{9},
		Template:   emailTemplate,
	})
	assert.ErrorIs(t, err, ErrContactsNotFound)
}

func TestDispatchService_BackendDownAborts(t *testing.T) {
	contacts := new(MockContactSource)
	contacts.On("Get", mock.Anything, mock.Anything).Return(nil, errs.Network(assert.AnError, "backend unreachable"))

	_, err := NewDispatchService(dispatch.NewEngine(), contacts, nil, nil).Dispatch(context.Background(), model.DispatchRequest{
		Channel:    model.ChannelEmail,
		ContactIDs: []int64{1, 2},
		Template:   emailTemplate,
	})
	assert.True(t, errs.Is(err, errs.KindNetwork))
}

func TestDispatchService_ValidatesBeforeResolving(t *testing.T) {
	contacts := new(MockContactSource)
	svc := NewDispatchService(dispatch.NewEngine(), contacts, nil, nil)

	tests := []struct {
		name string
		req  model.DispatchRequest
	}{
		{"unknown channel", model.DispatchRequest{Channel: "fax", ContactIDs: []int64{1}, Template: emailTemplate}},
		{"email without subject", model.DispatchRequest{Channel: model.ChannelEmail, ContactIDs: []int64{1}, Template: model.Message{Body: "b"}}},
		{"no recipients", model.DispatchRequest{Channel: model.ChannelEmail, Template: emailTemplate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Dispatch(context.Background(), tt.req)
			assert.True(t, errs.Is(err, errs.KindValidation), "got %v", err)
		})
	}
	contacts.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestDispatchService_InlineContactsAndBestEffortLogging(t *testing.T) {
	emailLog := new(MockEmailLog)
	emailLog.On("Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	repo := new(MockDispatchRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	engine := dispatch.NewEngine(dispatch.WithSender(stubEmail{}))
	report, err := NewDispatchService(engine, nil, emailLog, repo).Dispatch(context.Background(), model.DispatchRequest{
		Channel:  model.ChannelEmail,
		Contacts: []model.Contact{{ID: 5, Prenom: "Hery", Email: "hery@ex.mg"}},
		Template: emailTemplate,
	})
	require.NoError(t, err)
	assert.True(t, report.OverallSucceeded)
	assert.Empty(t, report.ID)
}

func TestDispatchService_LogsPersonalizedCopyPerRecipient(t *testing.T) {
	emailLog := new(MockEmailLog)
	emailLog.On("Save", mock.Anything, int64(1), model.Message{Subject: "Bonjour Ana", Body: "Salut Ana"}, mock.Anything).Return(nil).Once()
	emailLog.On("Save", mock.Anything, int64(2), model.Message{Subject: "Bonjour Bako", Body: "Salut Bako"}, mock.Anything).Return(nil).Once()

	engine := dispatch.NewEngine(dispatch.WithSender(stubEmail{fail: map[string]bool{"hery@ex.mg": true}}))
	report, err := NewDispatchService(engine, nil, emailLog, nil).Dispatch(context.Background(), model.DispatchRequest{
		Channel: model.ChannelEmail,
		Contacts: []model.Contact{
			{ID: 1, Prenom: "Ana", Email: "ana@ex.mg"},
			{ID: 3, Prenom: "Hery", Email: "hery@ex.mg"},
			{ID: 2, Prenom: "Bako", Email: "bako@ex.mg"},
		},
		Template: model.Message{Subject: "Bonjour [Prénom]", Body: "Salut [Prénom]"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.SucceededCount())

	emailLog.AssertExpectations(t)
	emailLog.AssertNumberOfCalls(t, "Save", 2)
}

// barrierLog only returns once want writes are in flight at the same time.
type barrierLog struct {
	want    int
	mu      sync.Mutex
	started int
	all     chan struct{}
}

func (b *barrierLog) Save(ctx context.Context, _ int64, _ model.Message, _ time.Time) error {
	b.mu.Lock()
	b.started++
	if b.started == b.want {
		close(b.all)
	}
	b.mu.Unlock()

	select {
	case <-b.all:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("send log writes ran one at a time")
	}
}

func TestDispatchService_SendLogWritesRunConcurrently(t *testing.T) {
	log := &barrierLog{want: 3, all: make(chan struct{})}
	engine := dispatch.NewEngine(dispatch.WithSender(stubEmail{}))

	start := time.Now()
	report, err := NewDispatchService(engine, nil, log, nil).Dispatch(context.Background(), model.DispatchRequest{
		Channel: model.ChannelEmail,
		Contacts: []model.Contact{
			{ID: 1, Email: "a@ex.mg"},
			{ID: 2, Email: "b@ex.mg"},
			{ID: 3, Email: "c@ex.mg"},
		},
		Template: emailTemplate,
	})
	require.NoError(t, err)
	assert.True(t, report.OverallSucceeded)
	assert.Equal(t, 3, log.started)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatchService_Get(t *testing.T) {
	repo := new(MockDispatchRepository)
	repo.On("Get", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	repo.On("Get", mock.Anything, "d-1").Return(&model.DispatchReport{ID: "d-1"}, nil)
	svc := NewDispatchService(nil, nil, nil, repo)

	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, errs.Is(err, errs.KindNotFound))

	got, err := svc.Get(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "d-1", got.ID)
}

func TestDispatchService_WithoutRepository(t *testing.T) {
	svc := NewDispatchService(nil, nil, nil, nil)

	items, total, err := svc.List(context.Background(), model.DispatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)

	stats, err := svc.Stats(context.Background(), model.DispatchFilter{})
	require.NoError(t, err)
	assert.NotNil(t, stats.ByChannel)
}
