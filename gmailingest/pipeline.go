package gmailingest

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"bitbucket.org/mmdatafocus/receipts_backend/utils"
	"github.com/sirupsen/logrus"
)

// ReceiptPipeline turns one claimed job into a finalized receipt.
//
// Stage failures are not all equal: a fetch failure kills the job, a single
// attachment download failure is skipped, and a parse failure still produces
// a (failed) receipt. Ingesting the message and classifying it are separate
// outcomes, so the job completes even when the receipt ends up failed.
type ReceiptPipeline struct {
	Receipts     ReceiptStore
	Jobs         JobStore
	Integrations IntegrationStore
	Source       MessageSource
	Parser       ReceiptParser
	Duplicates   *DuplicateDetector
	Categories   *CategorySuggester
	Audit        AuditSink
	Logger       *logrus.Logger
}

func (p *ReceiptPipeline) Process(ctx context.Context, job *models.ReceiptProcessingJob) {
	if err := p.process(ctx, job); err != nil {
		p.Logger.WithFields(logrus.Fields{
			"field":  "ReceiptPipeline",
			"job_id": job.ID,
		}).Error("job processing failed: " + err.Error())

		job.Status = models.ReceiptJobStatusFailed
		job.Error = err.Error()
		if saveErr := p.Jobs.Save(ctx, job); saveErr != nil {
			p.Logger.WithFields(logrus.Fields{
				"field":  "ReceiptPipeline",
				"job_id": job.ID,
			}).Error("failed job save failed: " + saveErr.Error())
		}
	}
}

func (p *ReceiptPipeline) process(ctx context.Context, job *models.ReceiptProcessingJob) error {
	payload := job.Payload()
	log := p.Logger.WithFields(logrus.Fields{
		"field":      "ReceiptPipeline",
		"job_id":     job.ID,
		"message_id": payload.SourceMessageId,
	})

	if payload.SourceMessageId == "" {
		return errors.New("job payload has no source message id")
	}

	conn, err := p.Integrations.Get(ctx, payload.IntegrationId)
	if err != nil {
		return fmt.Errorf("integration lookup: %w", err)
	}
	if conn.WorkspaceId == "" {
		return errors.New("no workspace for integration")
	}
	workspaceId := conn.WorkspaceId
	ctx = utils.SetWorkspaceIdInContext(ctx, workspaceId)

	log.Info("processing receipt job")

	// A reclaimed job reruns from here; this check is what keeps reruns from
	// creating a second receipt for the same message.
	existing, err := p.Receipts.FindBySourceMessageID(ctx, workspaceId, payload.SourceMessageId)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Info("receipt already exists for message")
		job.Status = models.ReceiptJobStatusCompleted
		job.ReceiptId = &existing.ID
		job.SetResult(models.ReceiptJobResult{ReceiptId: existing.ID.String()})
		return p.Jobs.Save(ctx, job)
	}

	message, err := p.Source.GetMessage(ctx, job.UserId, payload.SourceMessageId)
	if err != nil {
		return fmt.Errorf("message fetch: %w", err)
	}

	subject := message.HeaderValue("Subject")
	sender := message.HeaderValue("From")
	receivedAt := time.Now().UTC()
	if dateHeader := message.HeaderValue("Date"); dateHeader != "" {
		if t, perr := mail.ParseDate(dateHeader); perr == nil {
			receivedAt = t
		}
	}

	attachments := CollectAttachments(message.Payload)

	var attachmentPaths []string
	for _, att := range attachments {
		path, derr := p.Source.DownloadAttachment(ctx, job.UserId, payload.SourceMessageId, att.Id, att.Filename)
		if derr != nil {
			log.WithField("filename", att.Filename).Error("attachment download failed: " + derr.Error())
			continue
		}
		attachmentPaths = append(attachmentPaths, path)
	}

	var parsed *models.ParsedReceiptData
	if len(attachmentPaths) > 0 {
		parsed, err = p.Parser.Parse(ctx, attachmentPaths[0])
		if err != nil {
			log.Error("receipt parse failed: " + err.Error())
			parsed = nil
		}
	}
	status := models.ReceiptStatusFailed
	if parsed != nil {
		status = models.ReceiptStatusParsed
	}
	job.AdvanceProgress(60)
	if err := p.Jobs.Save(ctx, job); err != nil {
		return err
	}

	receipt := &models.Receipt{
		WorkspaceId:     workspaceId,
		UserId:          job.UserId,
		SourceMessageId: payload.SourceMessageId,
		ThreadId:        message.ThreadId,
		Subject:         subject,
		Sender:          sender,
		ReceivedAt:      receivedAt,
		Status:          status,
	}
	receipt.SetMetadata(models.ReceiptMetadata{
		Attachments: attachments,
		Labels:      message.LabelIds,
		Snippet:     message.Snippet,
	})
	receipt.SetParsedData(parsed)
	receipt.SetAttachmentPaths(attachmentPaths)
	if parsed != nil && parsed.Tax != nil {
		receipt.TaxAmount = *parsed.Tax
	}

	if err := p.Receipts.Create(ctx, receipt); err != nil {
		return err
	}
	job.AdvanceProgress(70)
	if err := p.Jobs.Save(ctx, job); err != nil {
		return err
	}

	if err := p.Audit.RecordImport(ctx, receipt, payload.IntegrationId); err != nil {
		return err
	}

	if parsed != nil && receipt.Status == models.ReceiptStatusParsed {
		candidates, derr := p.Duplicates.FindPotentialDuplicates(ctx, receipt)
		if derr != nil {
			log.Error("duplicate scan failed: " + derr.Error())
		} else {
			if len(candidates) > 0 {
				meta := receipt.Metadata()
				for _, c := range candidates {
					meta.PotentialDuplicates = append(meta.PotentialDuplicates, c.ID.String())
				}
				receipt.SetMetadata(meta)
				receipt.Status = models.ReceiptStatusNeedsReview
			} else {
				receipt.Status = models.ReceiptStatusDraft
			}
			job.AdvanceProgress(85)
			if err := p.Jobs.Save(ctx, job); err != nil {
				return err
			}
		}
	}

	if parsed != nil && receipt.Status != models.ReceiptStatusFailed {
		category, serr := p.Categories.SuggestCategory(ctx, receipt)
		if serr != nil {
			log.Error("category suggestion failed: " + serr.Error())
		} else {
			if category != nil {
				if data := receipt.ParsedData(); data != nil {
					data.Category = category.Name
					data.CategoryId = category.ID.String()
					receipt.SetParsedData(data)
				}
			}
			job.AdvanceProgress(95)
			if err := p.Jobs.Save(ctx, job); err != nil {
				return err
			}
		}
	}

	if err := p.Receipts.Save(ctx, receipt); err != nil {
		return err
	}

	job.Status = models.ReceiptJobStatusCompleted
	job.AdvanceProgress(100)
	job.ReceiptId = &receipt.ID
	job.SetResult(models.ReceiptJobResult{ReceiptId: receipt.ID.String()})
	if err := p.Jobs.Save(ctx, job); err != nil {
		return err
	}

	log.WithField("receipt_id", receipt.ID).Info("receipt processed")
	return nil
}
