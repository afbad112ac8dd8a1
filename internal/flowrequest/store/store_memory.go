package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowgate/internal/flowrequest/models"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/sentinel"
	txcontext "flowgate/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// InMemory keeps lifecycle state in maps for tests and local runs.
// Transactions run under one lock against a copy of the state that replaces
// the live state only when fn succeeds, so a failed fn leaves no trace.
// Writes other in-memory stores register with OnCommit land after the swap.
type InMemory struct {
	mu      sync.RWMutex
	state   *memoryState
	timeout time.Duration
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemory {
	return &InMemory{state: newMemoryState(), timeout: defaultTxTimeout}
}

func (m *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	working := m.state.clone()
	ctx, runHooks := txcontext.WithCommitHooks(ctx)
	if err := fn(ctx, working); err != nil {
		return err
	}
	m.state = working
	runHooks()
	return nil
}

func (m *InMemory) View(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, m.state)
}

type memoryState struct {
	flowRequests  map[uuid.UUID]*models.FlowRequest
	byProcessID   map[string]uuid.UUID
	profiles      map[string]*models.Profile
	channels      map[string]*models.Channel
	codes         map[string]*models.ConfirmationCode
	confirmations map[string]*models.ConsentConfirmation
}

func newMemoryState() *memoryState {
	return &memoryState{
		flowRequests:  make(map[uuid.UUID]*models.FlowRequest),
		byProcessID:   make(map[string]uuid.UUID),
		profiles:      make(map[string]*models.Profile),
		channels:      make(map[string]*models.Channel),
		codes:         make(map[string]*models.ConfirmationCode),
		confirmations: make(map[string]*models.ConsentConfirmation),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.flowRequests {
		c.flowRequests[k] = copyFlowRequest(v)
	}
	for k, v := range s.byProcessID {
		c.byProcessID[k] = v
	}
	for k, v := range s.profiles {
		p := *v
		c.profiles[k] = &p
	}
	for k, v := range s.channels {
		ch := *v
		c.channels[k] = &ch
	}
	for k, v := range s.codes {
		code := *v
		c.codes[k] = &code
	}
	for k, v := range s.confirmations {
		conf := *v
		c.confirmations[k] = &conf
	}
	return c
}

func copyFlowRequest(fr *models.FlowRequest) *models.FlowRequest {
	cp := *fr
	cp.Sources = slices.Clone(fr.Sources)
	if fr.Profile != nil {
		p := *fr.Profile
		cp.Profile = &p
	}
	return &cp
}

func (s *memoryState) CreateFlowRequest(_ context.Context, fr *models.FlowRequest) error {
	if _, ok := s.byProcessID[fr.ProcessID]; ok {
		return fmt.Errorf("process id %s: %w", fr.ProcessID, sentinel.ErrConflict)
	}
	for _, existing := range s.flowRequests {
		if existing.DestinationID == fr.DestinationID && existing.FlowID == fr.FlowID {
			return fmt.Errorf("flow id %s: %w", fr.FlowID, sentinel.ErrConflict)
		}
	}
	s.flowRequests[fr.ID] = copyFlowRequest(fr)
	s.byProcessID[fr.ProcessID] = fr.ID
	return nil
}

func (s *memoryState) FindFlowRequest(_ context.Context, id uuid.UUID) (*models.FlowRequest, error) {
	fr, ok := s.flowRequests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyFlowRequest(fr), nil
}

// FindFlowRequestForUpdate needs no lock: transactions already run one at a time.
func (s *memoryState) FindFlowRequestForUpdate(ctx context.Context, id uuid.UUID) (*models.FlowRequest, error) {
	return s.FindFlowRequest(ctx, id)
}

func (s *memoryState) FindFlowRequestByProcessID(ctx context.Context, processID string) (*models.FlowRequest, error) {
	id, ok := s.byProcessID[processID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindFlowRequest(ctx, id)
}

func (s *memoryState) ListFlowRequests(_ context.Context, filter FlowRequestFilter, page Page) ([]*models.FlowRequest, int, error) {
	var matched []*models.FlowRequest
	for _, fr := range s.flowRequests {
		if filter.DestinationID != "" && fr.DestinationID != filter.DestinationID {
			continue
		}
		matched = append(matched, fr)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ProcessID < matched[j].ProcessID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := len(matched)
	out := make([]*models.FlowRequest, 0, len(matched))
	for _, fr := range paginate(matched, page) {
		out = append(out, copyFlowRequest(fr))
	}
	return out, total, nil
}

func (s *memoryState) UpdateFlowRequest(_ context.Context, fr *models.FlowRequest, expected models.Status) error {
	current, ok := s.flowRequests[fr.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return fmt.Errorf("flow request status %s: %w", current.Status, sentinel.ErrInvalidState)
	}
	s.flowRequests[fr.ID] = copyFlowRequest(fr)
	return nil
}

func (s *memoryState) DeleteFlowRequest(_ context.Context, id uuid.UUID) error {
	fr, ok := s.flowRequests[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.flowRequests, id)
	delete(s.byProcessID, fr.ProcessID)
	for k, ch := range s.channels {
		if ch.FlowRequestID == id {
			delete(s.channels, k)
		}
	}
	for k, code := range s.codes {
		if code.FlowRequestID == id {
			delete(s.codes, k)
		}
	}
	for k, conf := range s.confirmations {
		if conf.FlowRequestID == id {
			delete(s.confirmations, k)
		}
	}
	return nil
}

func (s *memoryState) EnsureProfile(_ context.Context, p *models.Profile) error {
	if existing, ok := s.profiles[p.Code]; ok {
		if !existing.SameContent(p) {
			return fmt.Errorf("profile %s: %w", p.Code, sentinel.ErrConflict)
		}
		return nil
	}
	cp := *p
	s.profiles[p.Code] = &cp
	return nil
}

func (s *memoryState) CreateChannels(_ context.Context, channels []*models.Channel) error {
	for _, ch := range channels {
		if _, ok := s.channels[ch.ID]; ok {
			return fmt.Errorf("channel %s: %w", ch.ID, sentinel.ErrConflict)
		}
		for _, existing := range s.channels {
			if existing.FlowRequestID == ch.FlowRequestID && existing.SourceID == ch.SourceID {
				return fmt.Errorf("channel for source %s: %w", ch.SourceID, sentinel.ErrConflict)
			}
		}
		cp := *ch
		s.channels[ch.ID] = &cp
	}
	return nil
}

func (s *memoryState) FindChannel(_ context.Context, id string) (*models.Channel, error) {
	ch, ok := s.channels[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *memoryState) ListChannels(_ context.Context, filter ChannelFilter, page Page) ([]*models.Channel, int, error) {
	var matched []*models.Channel
	for _, ch := range s.channels {
		if filter.DestinationID != "" && ch.DestinationID != filter.DestinationID {
			continue
		}
		if filter.FlowRequestID != uuid.Nil && ch.FlowRequestID != filter.FlowRequestID {
			continue
		}
		if filter.Status != "" && ch.Status != filter.Status {
			continue
		}
		matched = append(matched, ch)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := len(matched)
	out := make([]*models.Channel, 0, len(matched))
	for _, ch := range paginate(matched, page) {
		cp := *ch
		out = append(out, &cp)
	}
	return out, total, nil
}

func (s *memoryState) UpdateChannel(_ context.Context, c *models.Channel, expected models.ChannelStatus) error {
	current, ok := s.channels[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return fmt.Errorf("channel status %s: %w", current.Status, sentinel.ErrInvalidState)
	}
	cp := *c
	s.channels[c.ID] = &cp
	return nil
}

func (s *memoryState) CreateCode(_ context.Context, code *models.ConfirmationCode) error {
	if _, ok := s.codes[code.Code]; ok {
		return sentinel.ErrConflict
	}
	cp := *code
	s.codes[code.Code] = &cp
	return nil
}

func (s *memoryState) InvalidateCodes(_ context.Context, flowRequestID uuid.UUID) error {
	for _, code := range s.codes {
		if code.FlowRequestID == flowRequestID {
			code.Consumed = true
		}
	}
	return nil
}

func (s *memoryState) ConsumeCode(_ context.Context, code string, now time.Time) (*models.ConfirmationCode, error) {
	record, ok := s.codes[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := record.ValidateForConsume(now); err != nil {
		return nil, err
	}
	record.Consumed = true
	cp := *record
	return &cp, nil
}

func (s *memoryState) CreateConfirmations(_ context.Context, confirmations []*models.ConsentConfirmation) error {
	for _, conf := range confirmations {
		if _, ok := s.confirmations[conf.ConfirmID]; ok {
			return fmt.Errorf("confirmation %s: %w", conf.ConfirmID, sentinel.ErrConflict)
		}
		cp := *conf
		s.confirmations[conf.ConfirmID] = &cp
	}
	return nil
}

func (s *memoryState) FindConfirmation(_ context.Context, confirmID string) (*models.ConsentConfirmation, error) {
	conf, ok := s.confirmations[confirmID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *conf
	return &cp, nil
}

func (s *memoryState) ListConfirmationsByBatch(_ context.Context, batchID string) ([]*models.ConsentConfirmation, error) {
	var out []*models.ConsentConfirmation
	for _, conf := range s.confirmations {
		if conf.BatchID == batchID {
			cp := *conf
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfirmID < out[j].ConfirmID })
	return out, nil
}

func (s *memoryState) FindOpenConfirmation(_ context.Context, channelID string) (*models.ConsentConfirmation, error) {
	var found *models.ConsentConfirmation
	for _, conf := range s.confirmations {
		if conf.ChannelID != channelID || conf.Resolved {
			continue
		}
		if found == nil || conf.CreatedAt.After(found.CreatedAt) {
			found = conf
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *memoryState) MoveConfirmation(_ context.Context, c *models.ConsentConfirmation) error {
	current, ok := s.confirmations[c.ConfirmID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Resolved {
		return sentinel.ErrAlreadyUsed
	}
	cp := *current
	cp.BatchID = c.BatchID
	cp.CallbackURL = c.CallbackURL
	s.confirmations[c.ConfirmID] = &cp
	return nil
}

func (s *memoryState) ResolveConfirmation(_ context.Context, c *models.ConsentConfirmation) error {
	current, ok := s.confirmations[c.ConfirmID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Resolved {
		return sentinel.ErrAlreadyUsed
	}
	cp := *c
	s.confirmations[c.ConfirmID] = &cp
	return nil
}

func paginate[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
