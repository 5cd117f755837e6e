// Package management implements the project management and annotator
// operations behind the HTTP API.
//
// Every operation takes the authenticated principal, resolves the project by
// its URL and returns either a view ready to be encoded or an error built
// with the types error kinds, so the transport only has to map kinds to
// status codes.
package management

import (
	"context"
	"errors"

	"annopedia/internal/annotation"
	"annopedia/internal/auth"
	"annopedia/internal/config"
	"annopedia/internal/logging"
	"annopedia/internal/mail"
	"annopedia/internal/store"
	"annopedia/internal/types"
)

// Service runs management operations against a store.
type Service struct {
	store   *store.Store
	mailer  mail.Mailer
	mailCfg config.MailConfig
}

// New creates a service. Invitation e-mails go through mailer using the
// sender and frontend address from mailCfg.
func New(st *store.Store, mailer mail.Mailer, mailCfg config.MailConfig) *Service {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}
	return &Service{store: st, mailer: mailer, mailCfg: mailCfg}
}

// project resolves a project URL together with its kind.
func (s *Service) project(ctx context.Context, url string) (*types.Project, annotation.Kind, error) {
	p, err := s.store.GetProjectByURL(ctx, url)
	if errors.Is(err, store.ErrNoRows) {
		return nil, nil, types.NotFound("Project with url %s does not exist", url)
	}
	if err != nil {
		return nil, nil, err
	}
	kind, err := annotation.For(p.Type)
	if err != nil {
		return nil, nil, err
	}
	return p, kind, nil
}

// adminProject resolves a project and checks that the caller administers it.
func (s *Service) adminProject(ctx context.Context, caller *auth.Principal, url string) (*types.Project, annotation.Kind, error) {
	p, kind, err := s.project(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	ok, err := s.store.IsAdministrator(ctx, p.ID, caller.Contributor.ID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		logging.Get(logging.CategoryAPI).Warn("%s is not an administrator of project %s", caller.Contributor.Username, p.URL)
		return nil, nil, types.Unauthorized("Contributor is not project administrator")
	}
	return p, kind, nil
}

// annotatorFor returns the annotator entries of the caller are attributed to
// within p: the private annotator the caller authenticated as when it belongs
// to p, else the caller's public annotator.
func (s *Service) annotatorFor(ctx context.Context, caller *auth.Principal, p *types.Project) (*types.Annotator, error) {
	if caller.Annotator != nil && caller.Annotator.ProjectID == p.ID {
		return caller.Annotator, nil
	}
	return s.store.GetOrCreatePublicAnnotator(ctx, caller.Contributor.ID)
}

func audit(evt logging.AuditEventType, caller *auth.Principal, p *types.Project, fields map[string]interface{}) {
	logging.Audit(logging.AuditEvent{
		Type:    evt,
		Actor:   caller.Contributor.Username,
		Project: p.URL,
		Fields:  fields,
	})
}
