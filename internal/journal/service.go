package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"futures-bot/internal/exchange"
	"futures-bot/internal/store"
	"futures-bot/internal/strategy/grid"
	"futures-bot/internal/strategy/twap"
)

// Service 负责持久化交易事件。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化事件日志服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS journal_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_events_type ON journal_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordOrderPlaced 记录一次成功提交的订单。
func (s *Service) RecordOrderPlaced(ctx context.Context, order exchange.Order, note string) {
	if err := s.Record(ctx, Event{
		Type:      EventOrderPlaced,
		Timestamp: time.Now().UTC(),
		Payload:   OrderPayload{Order: order, Note: note},
	}); err != nil {
		s.logger.Warn("记录下单事件失败", zap.Error(err))
	}
}

// RecordOrderFailed 记录一次失败的下单调用。
func (s *Service) RecordOrderFailed(ctx context.Context, payload OrderFailedPayload) {
	if err := s.Record(ctx, Event{
		Type:      EventOrderFailed,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn("记录下单失败事件失败", zap.Error(err))
	}
}

// RecordOrderCanceled 记录一次成功的撤单。
func (s *Service) RecordOrderCanceled(ctx context.Context, order exchange.Order) {
	if err := s.Record(ctx, Event{
		Type:      EventOrderCanceled,
		Timestamp: time.Now().UTC(),
		Payload:   OrderPayload{Order: order},
	}); err != nil {
		s.logger.Warn("记录撤单事件失败", zap.Error(err))
	}
}

// RecordTWAPRun 记录一次完整的 TWAP 执行。
func (s *Service) RecordTWAPRun(ctx context.Context, report twap.Report) {
	orders := report.Orders()
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	if err := s.Record(ctx, Event{
		Type:      EventTWAPRun,
		Timestamp: time.Now().UTC(),
		Payload:   TWAPRunPayload{Plan: report.Plan, Summary: report.Summary, OrderIDs: ids},
	}); err != nil {
		s.logger.Warn("记录TWAP事件失败", zap.Error(err))
	}
}

// RecordGridSetup 记录一次网格铺设。
func (s *Service) RecordGridSetup(ctx context.Context, params grid.Params, report grid.Report) {
	ids := make([]string, 0, len(report.Orders))
	for _, o := range report.Orders {
		ids = append(ids, o.ID)
	}
	if err := s.Record(ctx, Event{
		Type:      EventGridSetup,
		Timestamp: time.Now().UTC(),
		Payload: GridSetupPayload{
			Params:    params,
			Attempted: report.Attempted,
			Succeeded: report.Succeeded,
			OrderIDs:  ids,
		},
	}); err != nil {
		s.logger.Warn("记录网格铺设事件失败", zap.Error(err))
	}
}

// RecordGridCycle 记录一轮网格巡检。
func (s *Service) RecordGridCycle(ctx context.Context, params grid.Params, cycle grid.CycleReport) {
	filled := make([]string, 0, len(cycle.Filled))
	for _, o := range cycle.Filled {
		filled = append(filled, o.ID)
	}
	replaced := make([]string, 0, len(cycle.Replacements))
	for _, o := range cycle.Replacements {
		replaced = append(replaced, o.ID)
	}
	if err := s.Record(ctx, Event{
		Type:      EventGridCycle,
		Timestamp: time.Now().UTC(),
		Payload: GridCyclePayload{
			Params:      params,
			Checked:     cycle.Checked,
			FilledIDs:   filled,
			ReplacedIDs: replaced,
			Skipped:     cycle.Skipped,
		},
	}); err != nil {
		s.logger.Warn("记录网格巡检事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, payload, created_at FROM journal_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]StoredEvent, 0, limit)
	for rows.Next() {
		var (
			id      int64
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&id, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, StoredEvent{
			ID:        id,
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
	}

	return events, nil
}
