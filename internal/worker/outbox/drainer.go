package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/smnguyen/epulo/internal/repository"
)

const (
	// initialBackoff は指数バックオフの初回遅延（1分）。
	initialBackoff = 1 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（1時間）。
	maxBackoff = 1 * time.Hour
)

// MetricsRecorder はメール配信メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordEmailSent()
	RecordEmailFailed(terminal bool)
}

// Drainer はアウトボックスに積まれたメールを定期的に配信する。
// ClaimDueが対象行をsendingに更新して確保するため、
// 複数ワーカーが同時に走っても同じメールを二重配信しない。
type Drainer struct {
	outboxRepo  repository.EmailOutboxRepository
	sender      EmailSenderService
	metrics     MetricsRecorder
	logger      *slog.Logger
	batchSize   int
	maxAttempts int
}

// NewDrainer はDrainerの新しいインスタンスを生成する。
// batchSizeが0以下の場合はデフォルト値20、
// maxAttemptsが0以下の場合はデフォルト値5を使用する。
// metricsはnil可。
func NewDrainer(
	outboxRepo repository.EmailOutboxRepository,
	sender EmailSenderService,
	metrics MetricsRecorder,
	logger *slog.Logger,
	batchSize int,
	maxAttempts int,
) *Drainer {
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Drainer{
		outboxRepo:  outboxRepo,
		sender:      sender,
		metrics:     metrics,
		logger:      logger,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Start は指定間隔のティッカーでドレイナーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (d *Drainer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("メール配信ドレイナーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", d.batchSize),
		slog.Int("max_attempts", d.maxAttempts),
	)

	// 起動直後に1回実行
	if err := d.RunOnce(ctx); err != nil {
		d.logger.Error("メール配信サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("メール配信ドレイナーを停止しました")
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("メール配信サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は配信予定時刻を過ぎたメールを1バッチ分配信する。
// 送信失敗時は指数バックオフで次回配信予定を設定し、
// 最大試行回数に達した場合は配信を打ち切る。
func (d *Drainer) RunOnce(ctx context.Context) error {
	emails, err := d.outboxRepo.ClaimDue(ctx, d.batchSize)
	if err != nil {
		return err
	}

	if len(emails) == 0 {
		return nil
	}

	d.logger.Info("メール配信サイクルを開始します",
		slog.Int("email_count", len(emails)),
	)

	for _, email := range emails {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := d.sender.Send(email); err != nil {
			d.handleFailure(ctx, email.ID, email.Attempts, err)
			continue
		}

		if err := d.outboxRepo.MarkSent(ctx, email.ID, time.Now()); err != nil {
			d.logger.Error("配信済みステータスの更新に失敗しました",
				slog.String("email_id", email.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if d.metrics != nil {
			d.metrics.RecordEmailSent()
		}

		d.logger.Info("メールを配信しました",
			slog.String("email_id", email.ID),
		)
	}

	return nil
}

// handleFailure は送信失敗を記録する。
// attemptsは今回の失敗を含めた試行回数になる。
func (d *Drainer) handleFailure(ctx context.Context, emailID string, priorAttempts int, sendErr error) {
	attempts := priorAttempts + 1
	terminal := attempts >= d.maxAttempts
	nextAttemptAt := time.Now().Add(CalculateBackoff(priorAttempts))

	if err := d.outboxRepo.MarkFailed(ctx, emailID, sendErr.Error(), nextAttemptAt, terminal); err != nil {
		d.logger.Error("失敗ステータスの更新に失敗しました",
			slog.String("email_id", emailID),
			slog.String("error", err.Error()),
		)
		return
	}

	if d.metrics != nil {
		d.metrics.RecordEmailFailed(terminal)
	}

	if terminal {
		d.logger.Error("メール配信を断念しました",
			slog.String("email_id", emailID),
			slog.Int("attempts", attempts),
			slog.String("error", sendErr.Error()),
		)
		return
	}

	d.logger.Warn("メール配信に失敗しました。リトライします",
		slog.String("email_id", emailID),
		slog.Int("attempts", attempts),
		slog.Time("next_attempt_at", nextAttemptAt),
		slog.String("error", sendErr.Error()),
	)
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 初回1分、2倍ずつ増加、最大1時間。
func CalculateBackoff(priorAttempts int) time.Duration {
	delay := initialBackoff
	for i := 0; i < priorAttempts; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
