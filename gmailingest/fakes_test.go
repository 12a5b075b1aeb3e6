package gmailingest

import (
	"context"
	"errors"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeReceiptStore struct {
	byMessage map[string]*models.Receipt
	pool      []*models.Receipt

	created    []*models.Receipt
	saved      []*models.Receipt
	listedFrom time.Time
	listedTo   time.Time
	listErr    error
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{byMessage: map[string]*models.Receipt{}}
}

func (s *fakeReceiptStore) FindBySourceMessageID(ctx context.Context, workspaceId, messageId string) (*models.Receipt, error) {
	return s.byMessage[workspaceId+"/"+messageId], nil
}

func (s *fakeReceiptStore) Create(ctx context.Context, receipt *models.Receipt) error {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	s.created = append(s.created, receipt)
	s.byMessage[receipt.WorkspaceId+"/"+receipt.SourceMessageId] = receipt
	return nil
}

func (s *fakeReceiptStore) Save(ctx context.Context, receipt *models.Receipt) error {
	s.saved = append(s.saved, receipt)
	return nil
}

func (s *fakeReceiptStore) ListUnresolvedInWindow(ctx context.Context, workspaceId string, from, to time.Time, excludeId uuid.UUID) ([]*models.Receipt, error) {
	s.listedFrom = from
	s.listedTo = to
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.Receipt
	for _, r := range s.pool {
		if r.ID != excludeId && r.WorkspaceId == workspaceId {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeJobStore struct {
	next     *models.ReceiptProcessingJob
	nextErr  error
	claimOK  bool
	claimErr error

	claims int
	saved  []models.ReceiptProcessingJob
}

func (s *fakeJobStore) NextEligible(ctx context.Context, now time.Time, lockTimeout time.Duration) (*models.ReceiptProcessingJob, error) {
	return s.next, s.nextErr
}

func (s *fakeJobStore) Claim(ctx context.Context, job *models.ReceiptProcessingJob, workerId string, now time.Time) (bool, error) {
	s.claims++
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if s.claimOK {
		job.Status = models.ReceiptJobStatusProcessing
		job.LockedAt = &now
		job.LockedBy = &workerId
	}
	return s.claimOK, nil
}

func (s *fakeJobStore) Save(ctx context.Context, job *models.ReceiptProcessingJob) error {
	s.saved = append(s.saved, *job)
	return nil
}

type fakeIntegrationStore struct {
	conns map[string]*models.IntegrationConnection
}

func (s *fakeIntegrationStore) Get(ctx context.Context, id string) (*models.IntegrationConnection, error) {
	conn, ok := s.conns[id]
	if !ok {
		return nil, errors.New("integration not found")
	}
	return conn, nil
}

type fakeMessageSource struct {
	message      *SourceMessage
	messageErr   error
	downloadErrs map[string]error

	getCalls  int
	downloads []string
}

func (s *fakeMessageSource) GetMessage(ctx context.Context, userId, messageId string) (*SourceMessage, error) {
	s.getCalls++
	return s.message, s.messageErr
}

func (s *fakeMessageSource) DownloadAttachment(ctx context.Context, userId, messageId, attachmentId, filename string) (string, error) {
	if err := s.downloadErrs[attachmentId]; err != nil {
		return "", err
	}
	path := "/tmp/" + messageId + "_" + filename
	s.downloads = append(s.downloads, path)
	return path, nil
}

type fakeParser struct {
	result *models.ParsedReceiptData
	err    error
	calls  int
}

func (p *fakeParser) Parse(ctx context.Context, filePath string) (*models.ParsedReceiptData, error) {
	p.calls++
	return p.result, p.err
}

type fakeAuditSink struct {
	records int
}

func (s *fakeAuditSink) RecordImport(ctx context.Context, receipt *models.Receipt, integrationId string) error {
	s.records++
	return nil
}

type fakeCategoryStore struct {
	categories []*models.Category
	err        error
}

func (s *fakeCategoryStore) ListForWorkspace(ctx context.Context, workspaceId string) ([]*models.Category, error) {
	return s.categories, s.err
}

type fakeHistoryStore struct {
	transactions []*models.Transaction
	err          error
}

func (s *fakeHistoryStore) SearchCategorized(ctx context.Context, workspaceId, vendorSubstring string, limit int) ([]*models.Transaction, error) {
	return s.transactions, s.err
}

type fakePipeline struct {
	processed []uuid.UUID
}

func (p *fakePipeline) Process(ctx context.Context, job *models.ReceiptProcessingJob) {
	p.processed = append(p.processed, job.ID)
}
