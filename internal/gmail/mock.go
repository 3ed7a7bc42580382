package gmail

import (
	"context"
	"fmt"
	"sync"
)

// MockAPI is a mock implementation of the mailbox API for testing.
type MockAPI struct {
	mu sync.Mutex

	// Account email reported in call tracking.
	Account string

	// Messages returned by ListMessages/SearchMessages, in order.
	Messages []*Message

	// Bodies indexed by message ID for GetFullMessage.
	Bodies map[string]*MessageBody

	// Labels returned by ListLabels.
	Labels []*Label

	// Counters for UnreadCount/TotalCount.
	Unread int64
	Total  int64

	// SendID is returned by Send.
	SendID string

	// ArchiveFailures contains IDs whose archive should fail.
	ArchiveFailures map[string]bool

	// Error injection. Err fails every call; per-call errors take priority.
	Err        error
	ListErr    error
	GetErr     map[string]error
	CountErr   error
	SendErr    error
	ArchiveErr error

	// Call tracking for assertions.
	ListCalls     []ListOptions
	SearchCalls   []string
	GetCalls      []string
	SendCalls     [][]byte
	SendThreadIDs []string
	ArchiveCalls  []string
}

// NewMockAPI creates a mock with empty state.
func NewMockAPI(account string) *MockAPI {
	return &MockAPI{
		Account:         account,
		Bodies:          make(map[string]*MessageBody),
		ArchiveFailures: make(map[string]bool),
		GetErr:          make(map[string]error),
	}
}

func (m *MockAPI) ListMessages(_ context.Context, opts ListOptions) (*ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls = append(m.ListCalls, opts)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	max := opts.MaxResults
	if max <= 0 || max > len(m.Messages) {
		max = len(m.Messages)
	}
	return &ListResult{Messages: m.Messages[:max]}, nil
}

func (m *MockAPI) GetMessage(_ context.Context, id string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls = append(m.GetCalls, id)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := m.GetErr[id]; err != nil {
		return nil, err
	}
	for _, msg := range m.Messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, &NotFoundError{Path: "/messages/" + id}
}

func (m *MockAPI) GetFullMessage(_ context.Context, id string) (*MessageBody, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if body, ok := m.Bodies[id]; ok {
		return body, nil
	}
	return nil, &NotFoundError{Path: "/messages/" + id}
}

func (m *MockAPI) SearchMessages(ctx context.Context, query string, maxResults int) ([]*Message, error) {
	m.mu.Lock()
	m.SearchCalls = append(m.SearchCalls, query)
	m.mu.Unlock()

	result, err := m.ListMessages(ctx, ListOptions{MaxResults: maxResults, Query: query})
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}

func (m *MockAPI) UnreadCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return m.Unread, nil
}

func (m *MockAPI) TotalCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return m.Total, nil
}

func (m *MockAPI) Send(_ context.Context, raw []byte, threadID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendCalls = append(m.SendCalls, raw)
	m.SendThreadIDs = append(m.SendThreadIDs, threadID)
	if m.Err != nil {
		return "", m.Err
	}
	if m.SendErr != nil {
		return "", m.SendErr
	}
	if m.SendID != "" {
		return m.SendID, nil
	}
	return "sent-1", nil
}

func (m *MockAPI) ListLabels(_ context.Context) ([]*Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Labels, nil
}

func (m *MockAPI) ArchiveMessage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArchiveCalls = append(m.ArchiveCalls, id)
	if m.Err != nil {
		return m.Err
	}
	if m.ArchiveErr != nil {
		return m.ArchiveErr
	}
	if m.ArchiveFailures[id] {
		return fmt.Errorf("archive %s: injected failure", id)
	}
	return nil
}

func (m *MockAPI) ArchiveMessages(ctx context.Context, ids []string) (*ArchiveResult, error) {
	result := &ArchiveResult{}
	for _, id := range ids {
		if err := m.ArchiveMessage(ctx, id); err != nil {
			result.Failed++
		} else {
			result.Archived++
		}
	}
	return result, nil
}

// Ensure MockAPI implements the API interface.
var _ API = (*MockAPI)(nil)
