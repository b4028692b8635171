package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// Paging defaults.
const (
	DefaultListLimit    = types.DefaultListLimit
	DefaultResultsLimit = types.DefaultResultsLimit
)

// ListActorsFilter selects a page of the actor store.
type ListActorsFilter = types.ListActorsFilter

// ValidateCredential resolves the account behind credential.
func (s *Service) ValidateCredential(ctx context.Context, credential string) (*types.User, error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, call{
		operation:  "validate_credential",
		method:     http.MethodGet,
		path:       "/users/me",
		credential: credential,
	})
	if err != nil {
		return nil, err
	}

	var user types.User
	if err := decode(resp.body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListActors returns a page of the public actor store.
func (s *Service) ListActors(ctx context.Context, credential string, filter ListActorsFilter) (*types.Page[types.ActorSummary], error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, call{
		operation:  "list_actors",
		method:     http.MethodGet,
		path:       "/store",
		query:      filter.Values(),
		credential: credential,
	})
	if err != nil {
		return nil, err
	}

	var page types.Page[types.ActorSummary]
	if err := decode(resp.body, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []types.ActorSummary{}
	}
	return &page, nil
}

// GetActorDetail fetches an actor and its input schema. A schema that cannot
// be fetched is logged and reported as null; the detail is still returned.
func (s *Service) GetActorDetail(ctx context.Context, credential, actorID string) (*types.ActorDetail, error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}

	actorPath := "/acts/" + url.PathEscape(actorID)
	resp, err := s.do(ctx, call{
		operation:  "get_actor",
		method:     http.MethodGet,
		path:       actorPath,
		credential: credential,
	})
	if err != nil {
		return nil, err
	}

	var detail types.ActorDetail
	if err := decode(resp.body, &detail); err != nil {
		return nil, err
	}

	detail.InputSchema = s.fetchInputSchema(ctx, credential, actorID, actorPath)
	return &detail, nil
}

func (s *Service) fetchInputSchema(ctx context.Context, credential, actorID, actorPath string) json.RawMessage {
	resp, err := s.do(ctx, call{
		operation:  "get_input_schema",
		method:     http.MethodGet,
		path:       actorPath + "/input-schema",
		credential: credential,
	})
	if err == nil {
		schema := unwrapData(resp.body)
		if json.Valid(schema) {
			return schema
		}
		err = errInvalidSchema
	}

	if s.metrics != nil {
		s.metrics.SchemaFallbacks.Inc()
	}
	s.logger.WithError(err).WarnContext(ctx, "could not fetch input schema", "actor_id", actorID)
	return nil
}
