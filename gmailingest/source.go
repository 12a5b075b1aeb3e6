package gmailingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenProvider supplies a per-user OAuth token source. Token storage and
// refresh live with the integrations service behind this interface.
type TokenProvider interface {
	TokenSource(ctx context.Context, userId string) (oauth2.TokenSource, error)
}

// StaticTokenProvider serves one fixed access token for every user.
// Local/dev only.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

func (p *StaticTokenProvider) TokenSource(ctx context.Context, userId string) (oauth2.TokenSource, error) {
	if strings.TrimSpace(p.token) == "" {
		return nil, errors.New("gmail access token is empty")
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token}), nil
}

// GmailMessageSource implements MessageSource on the Gmail REST API.
type GmailMessageSource struct {
	tokens      TokenProvider
	downloadDir string
	log         *logrus.Logger
}

func NewGmailMessageSource(tokens TokenProvider, downloadDir string, log *logrus.Logger) *GmailMessageSource {
	if strings.TrimSpace(downloadDir) == "" {
		downloadDir = os.TempDir()
	}
	return &GmailMessageSource{tokens: tokens, downloadDir: downloadDir, log: log}
}

func (s *GmailMessageSource) service(ctx context.Context, userId string) (*gmail.Service, error) {
	ts, err := s.tokens.TokenSource(ctx, userId)
	if err != nil {
		return nil, err
	}
	return gmail.NewService(ctx, option.WithTokenSource(ts))
}

func (s *GmailMessageSource) GetMessage(ctx context.Context, userId, messageId string) (*SourceMessage, error) {
	svc, err := s.service(ctx, userId)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", messageId).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail message get: %w", err)
	}

	source := &SourceMessage{
		Id:       msg.Id,
		ThreadId: msg.ThreadId,
		LabelIds: msg.LabelIds,
		Snippet:  msg.Snippet,
		Payload:  convertPart(msg.Payload),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			source.Headers = append(source.Headers, Header{Name: h.Name, Value: h.Value})
		}
	}
	return source, nil
}

func convertPart(part *gmail.MessagePart) *MessagePart {
	if part == nil {
		return nil
	}
	out := &MessagePart{
		Filename: part.Filename,
		MimeType: part.MimeType,
	}
	if part.Body != nil {
		out.Body = PartBody{AttachmentId: part.Body.AttachmentId, Size: part.Body.Size}
	}
	for _, child := range part.Parts {
		out.Parts = append(out.Parts, convertPart(child))
	}
	return out
}

func (s *GmailMessageSource) DownloadAttachment(ctx context.Context, userId, messageId, attachmentId, filename string) (string, error) {
	svc, err := s.service(ctx, userId)
	if err != nil {
		return "", err
	}

	body, err := svc.Users.Messages.Attachments.Get("me", messageId, attachmentId).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail attachment get: %w", err)
	}

	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(body.Data)
	}
	if err != nil {
		return "", fmt.Errorf("gmail attachment decode: %w", err)
	}

	path := filepath.Join(s.downloadDir, messageId+"_"+sanitizeFilename(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{
		"field":      "GmailMessageSource",
		"message_id": messageId,
		"path":       path,
	}).Debug("attachment stored")
	return path, nil
}

// sanitizeFilename keeps only the base name so an attachment name can never
// escape the download directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}
