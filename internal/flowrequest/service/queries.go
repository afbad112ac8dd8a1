package service

import (
	"context"

	"flowgate/internal/access"
	"flowgate/internal/flowrequest/models"
	"flowgate/internal/flowrequest/store"
	dErrors "flowgate/pkg/domain-errors"
)

// Get returns the caller's flow request. Flow requests of other destinations
// read as not found.
func (s *Service) Get(ctx context.Context, id *access.Identity, processID string) (*models.FlowRequest, error) {
	var fr *models.FlowRequest
	err := s.tx.View(ctx, func(ctx context.Context, st store.Store) error {
		found, err := st.FindFlowRequestByProcessID(ctx, processID)
		if err != nil {
			return notFoundOr(err, "flow request")
		}
		fr = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := authorize(id, access.Operation{
		Resource: access.ResourceFlowRequest,
		Action:   access.ActionRead,
		Owner:    fr.DestinationID,
	}); err != nil {
		return nil, err
	}
	return fr, nil
}

// List pages through the flow requests visible to the caller and returns
// the total count of the unpaged listing.
func (s *Service) List(ctx context.Context, id *access.Identity, page store.Page) ([]*models.FlowRequest, int, error) {
	owner, err := s.listingOwner(id, access.ResourceFlowRequest)
	if err != nil {
		return nil, 0, err
	}
	var (
		items []*models.FlowRequest
		total int
	)
	err = s.tx.View(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		items, total, err = st.ListFlowRequests(ctx, store.FlowRequestFilter{DestinationID: owner}, s.clamp(page))
		return err
	})
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "list flow requests")
	}
	return items, total, nil
}

// SearchByChannel finds the flow request a channel belongs to. The query
// scope is meant for dispatchers and is not bound to one destination.
func (s *Service) SearchByChannel(ctx context.Context, id *access.Identity, channelID string) (*models.FlowRequest, error) {
	if err := authorize(id, access.Operation{Resource: access.ResourceFlowRequest, Action: access.ActionQuery}); err != nil {
		return nil, err
	}
	if channelID == "" {
		return nil, dErrors.New(dErrors.CodeMissingParam, "channel_id is required")
	}
	var fr *models.FlowRequest
	err := s.tx.View(ctx, func(ctx context.Context, st store.Store) error {
		ch, err := st.FindChannel(ctx, channelID)
		if err != nil {
			return notFoundOr(err, "channel")
		}
		fr, err = st.FindFlowRequest(ctx, ch.FlowRequestID)
		if err != nil {
			return notFoundOr(err, "flow request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fr, nil
}

// ChannelQuery narrows ListChannels. ProcessID restricts the listing to one
// flow request; Status is a raw status filter.
type ChannelQuery struct {
	ProcessID string
	Status    string
}

func (s *Service) ListChannels(ctx context.Context, id *access.Identity, q ChannelQuery, page store.Page) ([]*models.Channel, int, error) {
	filter := store.ChannelFilter{}
	if q.Status != "" {
		status, err := models.ParseChannelStatus(q.Status)
		if err != nil {
			return nil, 0, err
		}
		filter.Status = status
	}

	var (
		items []*models.Channel
		total int
	)
	err := s.tx.View(ctx, func(ctx context.Context, st store.Store) error {
		if q.ProcessID != "" {
			fr, err := st.FindFlowRequestByProcessID(ctx, q.ProcessID)
			if err != nil {
				return notFoundOr(err, "flow request")
			}
			if err := authorize(id, access.Operation{
				Resource: access.ResourceChannel,
				Action:   access.ActionRead,
				Owner:    fr.DestinationID,
			}); err != nil {
				return err
			}
			filter.FlowRequestID = fr.ID
		} else {
			owner, err := s.listingOwner(id, access.ResourceChannel)
			if err != nil {
				return err
			}
			filter.DestinationID = owner
		}
		var err error
		items, total, err = st.ListChannels(ctx, filter, s.clamp(page))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "list channels")
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) GetChannel(ctx context.Context, id *access.Identity, channelID string) (*models.Channel, error) {
	var ch *models.Channel
	err := s.tx.View(ctx, func(ctx context.Context, st store.Store) error {
		found, err := st.FindChannel(ctx, channelID)
		if err != nil {
			return notFoundOr(err, "channel")
		}
		ch = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := authorize(id, access.Operation{
		Resource: access.ResourceChannel,
		Action:   access.ActionRead,
		Owner:    ch.DestinationID,
	}); err != nil {
		return nil, err
	}
	return ch, nil
}

// listingOwner checks the read scope and returns the destination a listing
// is restricted to. Non-super clients without a destination see nothing.
func (s *Service) listingOwner(id *access.Identity, resource access.Resource) (string, error) {
	if err := authorize(id, access.Operation{Resource: resource, Action: access.ActionRead}); err != nil {
		return "", err
	}
	owner := access.OwnerFilter(id)
	if owner == "" && !id.Super {
		return "", dErrors.New(dErrors.CodeForbidden, "client is not bound to a destination")
	}
	return owner, nil
}

func (s *Service) clamp(page store.Page) store.Page {
	if page.Offset < 0 {
		page.Offset = 0
	}
	if page.Limit <= 0 || page.Limit > s.maxLimit {
		page.Limit = s.maxLimit
	}
	return page
}
