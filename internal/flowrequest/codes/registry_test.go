package codes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/requestcontext"
)

type RegistrySuite struct {
	suite.Suite
	store    *store.InMemory
	registry *Registry
	fr       *models.FlowRequest
	ctx      context.Context
	now      time.Time
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = store.NewInMemory()
	s.registry = New(30 * time.Minute)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	fr, err := models.NewFlowRequest(uuid.New(), "f_1", "p_1", "dest-1", nil, nil, nil, []string{"src-1"}, s.now)
	s.Require().NoError(err)
	s.fr = fr
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, st store.Store) error {
		return st.CreateFlowRequest(ctx, fr)
	}))
}

func (s *RegistrySuite) issue(ctx context.Context) *models.ConfirmationCode {
	var code *models.ConfirmationCode
	s.Require().NoError(s.store.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		code, err = s.registry.Issue(ctx, st, s.fr.ID, models.ActionAdd)
		return err
	}))
	return code
}

func (s *RegistrySuite) consume(ctx context.Context, value string) (*models.ConfirmationCode, error) {
	var code *models.ConfirmationCode
	err := s.store.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		code, err = s.registry.ValidateAndConsume(ctx, st, value)
		return err
	})
	return code, err
}

func (s *RegistrySuite) TestIssueThenConsume() {
	code := s.issue(s.ctx)
	s.Len(code.Code, 43, "32 random bytes base64url encoded")
	s.Equal(s.now.Add(30*time.Minute), code.ExpiresAt)

	consumed, err := s.consume(s.ctx, code.Code)
	s.Require().NoError(err)
	s.Equal(s.fr.ID, consumed.FlowRequestID)

	_, err = s.consume(s.ctx, code.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfirmationCode), "second use must fail")
}

func (s *RegistrySuite) TestIssueInvalidatesPreviousCode() {
	first := s.issue(s.ctx)
	second := s.issue(s.ctx)
	s.NotEqual(first.Code, second.Code)

	_, err := s.consume(s.ctx, first.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfirmationCode))

	_, err = s.consume(s.ctx, second.Code)
	s.NoError(err)
}

func (s *RegistrySuite) TestUnknownCode() {
	_, err := s.consume(s.ctx, "does-not-exist")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfirmationCode))
}

func (s *RegistrySuite) TestExpiredCode() {
	code := s.issue(s.ctx)
	later := requestcontext.WithTime(context.Background(), s.now.Add(31*time.Minute))
	_, err := s.consume(later, code.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfirmationCode))
}

func (s *RegistrySuite) TestFailedTransitionLeavesCodeUnconsumed() {
	code := s.issue(s.ctx)
	errTransition := errors.New("transition failed")

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, st store.Store) error {
		if _, err := s.registry.ValidateAndConsume(ctx, st, code.Code); err != nil {
			return err
		}
		return errTransition
	})
	s.ErrorIs(err, errTransition)

	_, err = s.consume(s.ctx, code.Code)
	s.NoError(err, "rolled back consumption must leave the code usable")
}

func (s *RegistrySuite) TestConcurrentConsumeSucceedsOnce() {
	code := s.issue(s.ctx)

	const goroutines = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		invalid   atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.consume(s.ctx, code.Code)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeInvalidConfirmationCode):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), invalid.Load())
}
