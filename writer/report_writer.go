package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "solbridge/config"
	"solbridge/logger"
	"solbridge/models"
)

// LedgerRecord is one liquidation outcome row in the parquet ledger.
type LedgerRecord struct {
	RunID   string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Asset   string  `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Balance float64 `parquet:"name=balance, type=DOUBLE"`
	Pair    string  `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Volume  float64 `parquet:"name=volume, type=DOUBLE"`
	Status  string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Detail  string  `parquet:"name=detail, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; seeking is never exercised.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// ReportWriter persists workflow run reports: a local JSON document
// always, plus a JSON copy and a parquet liquidation ledger in S3 when
// storage is enabled.
type ReportWriter struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewReportWriter builds the writer. The S3 client is only created
// when storage.s3.enabled is set; a credential failure there is an
// error because the operator asked for durable storage.
func NewReportWriter(cfg *appconfig.Config, log *logger.Log) (*ReportWriter, error) {
	w := &ReportWriter{config: cfg, log: log}
	if !cfg.Storage.S3.Enabled {
		return w, nil
	}

	ctx := context.Background()
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	w.s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("report_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("report writer initialized with S3 storage")

	return w, nil
}

// Write persists the report. The local JSON document is the source of
// truth; S3 upload failures are logged and returned but the local file
// remains.
func (w *ReportWriter) Write(ctx context.Context, report *models.Report) (string, error) {
	log := w.log.WithComponent("report_writer").WithFields(logger.Fields{
		"run_id":      report.RunID,
		"final_state": string(report.FinalState),
	})

	path, err := w.writeLocal(report)
	if err != nil {
		return "", err
	}
	log.WithFields(logger.Fields{"path": path}).Info("report written")

	if w.s3Client == nil {
		return path, nil
	}

	if err := w.uploadReport(ctx, report); err != nil {
		log.WithError(err).Error("failed to upload report to S3")
		return path, err
	}
	if len(report.Liquidations) > 0 {
		if err := w.uploadLedger(ctx, report); err != nil {
			log.WithError(err).Error("failed to upload liquidation ledger to S3")
			return path, err
		}
	}
	log.Info("report uploaded to S3")
	return path, nil
}

func (w *ReportWriter) writeLocal(report *models.Report) (string, error) {
	dir := w.config.Storage.ReportDir
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.json", report.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func (w *ReportWriter) s3KeyPrefix(report *models.Report) string {
	return fmt.Sprintf("runs/date=%s", report.StartedAt.UTC().Format("2006-01-02"))
}

func (w *ReportWriter) uploadReport(ctx context.Context, report *models.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	key := fmt.Sprintf("%s/%s_report.json", w.s3KeyPrefix(report), report.RunID)
	return w.uploadToS3(ctx, key, data, "application/json")
}

func (w *ReportWriter) uploadLedger(ctx context.Context, report *models.Report) error {
	data, err := w.createLedgerParquet(report)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/%s_ledger.parquet", w.s3KeyPrefix(report), report.RunID)
	return w.uploadToS3(ctx, key, data, "application/octet-stream")
}

func (w *ReportWriter) createLedgerParquet(report *models.Report) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(LedgerRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, outcome := range report.Liquidations {
		balance, _ := outcome.Balance.Float64()
		volume, _ := outcome.Volume.Float64()
		record := LedgerRecord{
			RunID:   report.RunID,
			Asset:   outcome.Asset,
			Balance: balance,
			Pair:    outcome.Pair,
			Volume:  volume,
			Status:  outcome.Status,
			Detail:  outcome.Detail,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write ledger record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize ledger parquet: %w", err)
	}
	return fw.Bytes(), nil
}

func (w *ReportWriter) uploadToS3(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"solbridge-version": w.config.Solbridge.Version,
		},
	}

	_, err := w.s3Client.PutObject(context.WithoutCancel(ctx), input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}
