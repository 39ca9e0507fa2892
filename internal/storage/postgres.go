package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/quantfusion/hybrid-engine/models"
)

// DB is the PostgreSQL-backed persistence layer. All writes are
// last-write-wins upserts; callers treat failures as non-fatal and
// keep working from in-memory state.
type DB struct {
	*sql.DB
}

// New opens a connection using a PostgreSQL connection string and
// creates the schema if it does not exist
func New(connStr string) (*DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS engine_weights (
			id INT PRIMARY KEY,
			input_hidden_weights TEXT NOT NULL,
			hidden_output_weights TEXT NOT NULL,
			hidden_bias TEXT NOT NULL,
			output_bias TEXT NOT NULL,
			learning_rate DOUBLE PRECISION NOT NULL,
			epsilon DOUBLE PRECISION NOT NULL,
			exported_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pattern_memory (
			signature TEXT PRIMARY KEY,
			win_count INT NOT NULL,
			loss_count INT NOT NULL,
			total_pnl DOUBLE PRECISION NOT NULL,
			avg_pnl DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS training_data (
			id TEXT PRIMARY KEY,
			pattern TEXT NOT NULL,
			outcome TEXT NOT NULL,
			confluence TEXT,
			risk_reward DOUBLE PRECISION NOT NULL,
			note TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS trade_history (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			type TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION,
			entry_time TIMESTAMP NOT NULL,
			outcome TEXT NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			risk_amount DOUBLE PRECISION,
			confidence DOUBLE PRECISION,
			snapshot TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS training_sessions (
			id TEXT PRIMARY KEY,
			total_trades_used INT NOT NULL,
			learning_rate DOUBLE PRECISION NOT NULL,
			epsilon DOUBLE PRECISION NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			final_win_rate DOUBLE PRECISION NOT NULL,
			patterns_discovered INT NOT NULL,
			status TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetWeights loads the single persisted weight bundle, or nil when
// no weights have been saved yet
func (db *DB) GetWeights(ctx context.Context) (*models.WeightsBundle, error) {
	var (
		inputHidden  string
		hiddenOutput string
		hiddenBias   string
		outputBias   string
		bundle       models.WeightsBundle
	)

	err := db.QueryRowContext(ctx, `
		SELECT input_hidden_weights, hidden_output_weights, hidden_bias, output_bias,
			learning_rate, epsilon, exported_at
		FROM engine_weights
		WHERE id = 1
	`).Scan(&inputHidden, &hiddenOutput, &hiddenBias, &outputBias,
		&bundle.LearningRate, &bundle.Epsilon, &bundle.ExportedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(inputHidden), &bundle.InputHiddenWeights); err != nil {
		return nil, fmt.Errorf("decode input-hidden weights: %w", err)
	}
	if err := json.Unmarshal([]byte(hiddenOutput), &bundle.HiddenOutputWeights); err != nil {
		return nil, fmt.Errorf("decode hidden-output weights: %w", err)
	}
	if err := json.Unmarshal([]byte(hiddenBias), &bundle.HiddenBias); err != nil {
		return nil, fmt.Errorf("decode hidden bias: %w", err)
	}
	if err := json.Unmarshal([]byte(outputBias), &bundle.OutputBias); err != nil {
		return nil, fmt.Errorf("decode output bias: %w", err)
	}

	return &bundle, nil
}

// SaveWeights upserts the single weight bundle row
func (db *DB) SaveWeights(ctx context.Context, bundle *models.WeightsBundle) error {
	inputHidden, err := json.Marshal(bundle.InputHiddenWeights)
	if err != nil {
		return err
	}
	hiddenOutput, err := json.Marshal(bundle.HiddenOutputWeights)
	if err != nil {
		return err
	}
	hiddenBias, err := json.Marshal(bundle.HiddenBias)
	if err != nil {
		return err
	}
	outputBias, err := json.Marshal(bundle.OutputBias)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO engine_weights (
			id, input_hidden_weights, hidden_output_weights, hidden_bias, output_bias,
			learning_rate, epsilon, exported_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			input_hidden_weights = EXCLUDED.input_hidden_weights,
			hidden_output_weights = EXCLUDED.hidden_output_weights,
			hidden_bias = EXCLUDED.hidden_bias,
			output_bias = EXCLUDED.output_bias,
			learning_rate = EXCLUDED.learning_rate,
			epsilon = EXCLUDED.epsilon,
			exported_at = EXCLUDED.exported_at
	`, string(inputHidden), string(hiddenOutput), string(hiddenBias), string(outputBias),
		bundle.LearningRate, bundle.Epsilon, bundle.ExportedAt)

	return err
}

// GetPatternMemory loads all persisted pattern memory entries
func (db *DB) GetPatternMemory(ctx context.Context) ([]models.PatternMemoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT signature, win_count, loss_count, total_pnl, avg_pnl, confidence, last_seen
		FROM pattern_memory
		ORDER BY signature
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.PatternMemoryEntry
	for rows.Next() {
		var e models.PatternMemoryEntry
		if err := rows.Scan(&e.Signature, &e.WinCount, &e.LossCount,
			&e.TotalPnl, &e.AvgPnl, &e.Confidence, &e.LastSeen); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SavePatternMemory upserts every entry, last write wins per signature
func (db *DB) SavePatternMemory(ctx context.Context, entries []models.PatternMemoryEntry) error {
	for _, e := range entries {
		_, err := db.ExecContext(ctx, `
			INSERT INTO pattern_memory (
				signature, win_count, loss_count, total_pnl, avg_pnl, confidence, last_seen
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (signature)
			DO UPDATE SET
				win_count = EXCLUDED.win_count,
				loss_count = EXCLUDED.loss_count,
				total_pnl = EXCLUDED.total_pnl,
				avg_pnl = EXCLUDED.avg_pnl,
				confidence = EXCLUDED.confidence,
				last_seen = EXCLUDED.last_seen
		`, e.Signature, e.WinCount, e.LossCount, e.TotalPnl, e.AvgPnl, e.Confidence, e.LastSeen)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetTrainingData loads all historical training records
func (db *DB) GetTrainingData(ctx context.Context) ([]models.TrainingDataRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, pattern, outcome, confluence, risk_reward, note
		FROM training_data
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TrainingDataRecord
	for rows.Next() {
		var r models.TrainingDataRecord
		var confluence, note sql.NullString
		if err := rows.Scan(&r.ID, &r.Pattern, &r.Outcome, &confluence, &r.RiskReward, &note); err != nil {
			return nil, err
		}
		if confluence.Valid {
			r.Confluence = confluence.String
		}
		if note.Valid {
			r.Note = note.String
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// SaveTrainingData upserts the given training records
func (db *DB) SaveTrainingData(ctx context.Context, records []models.TrainingDataRecord) error {
	for _, r := range records {
		_, err := db.ExecContext(ctx, `
			INSERT INTO training_data (id, pattern, outcome, confluence, risk_reward, note)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id)
			DO UPDATE SET
				pattern = EXCLUDED.pattern,
				outcome = EXCLUDED.outcome,
				confluence = EXCLUDED.confluence,
				risk_reward = EXCLUDED.risk_reward,
				note = EXCLUDED.note
		`, r.ID, r.Pattern, r.Outcome, r.Confluence, r.RiskReward, r.Note)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetTradeHistory loads trades oldest first for replay
func (db *DB) GetTradeHistory(ctx context.Context) ([]models.TradeRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, symbol, type, entry_price, exit_price, entry_time,
			outcome, pnl, risk_amount, confidence, snapshot
		FROM trade_history
		ORDER BY entry_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var exitPrice, riskAmount, confidence sql.NullFloat64
		var snapshot sql.NullString
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Type, &t.EntryPrice, &exitPrice,
			&t.EntryTime, &t.Outcome, &t.Pnl, &riskAmount, &confidence, &snapshot); err != nil {
			return nil, err
		}
		if exitPrice.Valid {
			t.ExitPrice = exitPrice.Float64
		}
		if riskAmount.Valid {
			t.RiskAmount = riskAmount.Float64
		}
		if confidence.Valid {
			t.Confidence = confidence.Float64
		}
		if snapshot.Valid && snapshot.String != "" {
			var snap models.MarketSnapshot
			if err := json.Unmarshal([]byte(snapshot.String), &snap); err == nil {
				t.Snapshot = &snap
			}
		}
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// SaveTrade records a trade for later replay
func (db *DB) SaveTrade(ctx context.Context, trade *models.TradeRecord) error {
	var snapshot sql.NullString
	if trade.Snapshot != nil {
		data, err := json.Marshal(trade.Snapshot)
		if err != nil {
			return err
		}
		snapshot = sql.NullString{String: string(data), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO trade_history (
			id, symbol, type, entry_price, exit_price, entry_time,
			outcome, pnl, risk_amount, confidence, snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			exit_price = EXCLUDED.exit_price,
			outcome = EXCLUDED.outcome,
			pnl = EXCLUDED.pnl,
			confidence = EXCLUDED.confidence,
			snapshot = EXCLUDED.snapshot
	`, trade.ID, trade.Symbol, trade.Type, trade.EntryPrice, nullFloat(trade.ExitPrice),
		trade.EntryTime, trade.Outcome, trade.Pnl, nullFloat(trade.RiskAmount),
		nullFloat(trade.Confidence), snapshot)

	return err
}

// LogTrainingSession upserts a session row so a RUNNING record can be
// completed in place
func (db *DB) LogTrainingSession(ctx context.Context, session *models.TrainingSession) error {
	var completedAt sql.NullTime
	if !session.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: session.CompletedAt, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO training_sessions (
			id, total_trades_used, learning_rate, epsilon, started_at,
			completed_at, final_win_rate, patterns_discovered, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			total_trades_used = EXCLUDED.total_trades_used,
			learning_rate = EXCLUDED.learning_rate,
			epsilon = EXCLUDED.epsilon,
			completed_at = EXCLUDED.completed_at,
			final_win_rate = EXCLUDED.final_win_rate,
			patterns_discovered = EXCLUDED.patterns_discovered,
			status = EXCLUDED.status
	`, session.ID, session.TotalTradesUsed, session.LearningRate, session.Epsilon,
		session.StartedAt, completedAt, session.FinalWinRate, session.Patterns, session.Status)

	return err
}

func nullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

var _ models.Store = (*DB)(nil)
