package management

import (
	"context"
	"errors"

	"annopedia/internal/auth"
	"annopedia/internal/logging"
	"annopedia/internal/mail"
	"annopedia/internal/store"
	"annopedia/internal/types"
)

// InviteRequest names the contributor to invite. SendEmail defaults to true.
type InviteRequest struct {
	Email     string
	Username  string
	SendEmail *bool
}

// InviteAnnotator makes a contributor a private annotator of a project and
// e-mails them their annotation link. The contributor is created when no
// contributor has both the username and the e-mail.
func (s *Service) InviteAnnotator(ctx context.Context, caller *auth.Principal, url string, req InviteRequest) (*AnnotatorView, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	if req.Username == "" || req.Email == "" {
		return nil, types.Unprocessable("Missing request data (username, email)")
	}

	c, err := s.store.GetContributorByUsernameEmail(ctx, req.Username, req.Email)
	if errors.Is(err, store.ErrNoRows) {
		c, err = s.store.GetOrCreateContributor(ctx, req.Username, req.Email)
		if err == nil && c.Email != req.Email {
			return nil, types.Conflict("Contributor %s is registered with a different email", req.Username)
		}
	}
	if err != nil {
		return nil, err
	}

	a, err := s.store.CreatePrivateAnnotator(ctx, p.ID, c.ID, caller.Contributor.ID)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, types.Invalid("Private Annotator %s is already invited to the project", req.Username)
	}
	if err != nil {
		return nil, err
	}
	audit(logging.AuditAnnotatorInvite, caller, p, map[string]interface{}{"annotator": c.Username})

	if req.SendEmail == nil || *req.SendEmail {
		// The annotator exists either way; a failed e-mail can be resent.
		if err := s.sendInvitation(ctx, caller, p, a); err != nil {
			logging.Get(logging.CategoryMail).Warn("Invited %s to project %s without e-mail: %v", c.Username, p.URL, err)
		}
	}

	imported, err := s.store.CountImportedTexts(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return annotatorView(p, a, caller.Contributor.Username, types.Completion(0, imported)), nil
}

func (s *Service) sendInvitation(ctx context.Context, caller *auth.Principal, p *types.Project, a *types.Annotator) error {
	return mail.SendInvitation(ctx, s.mailer, s.mailCfg, mail.Invitation{
		To:       a.Contributor.Email,
		Username: a.Contributor.Username,
		Inviter:  caller.Contributor.Username,
		Project:  p.Name,
		Token:    a.Token,
	})
}

// ListPrivateAnnotators lists the private annotators of a project with the
// share of imported texts each has annotated.
func (s *Service) ListPrivateAnnotators(ctx context.Context, caller *auth.Principal, url string) ([]*AnnotatorView, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	annotators, err := s.store.ListPrivateAnnotators(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	imported, err := s.store.CountImportedTexts(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	inviters := map[int64]string{}
	out := make([]*AnnotatorView, 0, len(annotators))
	for _, a := range annotators {
		annotated, err := s.store.CountAnnotatorEntries(ctx, p.ID, a.ID)
		if err != nil {
			return nil, err
		}
		inviter, ok := inviters[a.InvitingContributorID]
		if !ok {
			c, err := s.store.GetContributor(ctx, a.InvitingContributorID)
			if err != nil && !errors.Is(err, store.ErrNoRows) {
				return nil, err
			}
			if c != nil {
				inviter = c.Username
			}
			inviters[a.InvitingContributorID] = inviter
		}
		out = append(out, annotatorView(p, a, inviter, types.Completion(annotated, imported)))
	}
	return out, nil
}

// ResendInvitation e-mails an already invited private annotator again.
func (s *Service) ResendInvitation(ctx context.Context, caller *auth.Principal, url, username, email string) (*Message, error) {
	p, _, err := s.adminProject(ctx, caller, url)
	if err != nil {
		return nil, err
	}
	notInvited := types.NotFound("Contributor with email %s and username %s has not been invited yet to the project %s",
		email, username, p.Name)

	a, err := s.store.GetPrivateAnnotator(ctx, p.ID, username)
	if errors.Is(err, store.ErrNoRows) {
		return nil, notInvited
	}
	if err != nil {
		return nil, err
	}
	if a.Contributor == nil || a.Contributor.Email != email {
		return nil, notInvited
	}

	if err := s.sendInvitation(ctx, caller, p, a); err != nil {
		return nil, err
	}
	audit(logging.AuditAnnotatorReinvite, caller, p, map[string]interface{}{"annotator": username})
	return message("Successfully sent email again to private annotator at email %s", email), nil
}
