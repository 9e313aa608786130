package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned by GetBacktestRun for an unknown run id.
var ErrRunNotFound = errors.New("backtest run not found")

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(book, trade_id, class, symbol, direction, size, entry_price, exit_price, stop_loss, take_profit,
		 open_time, close_time, realized_pl, r_multiple, kind, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Book, t.TradeID, t.Class, t.Symbol, t.Direction, t.Size, t.EntryPrice, t.ExitPrice,
		t.StopLoss, t.TakeProfit, t.OpenTime, t.CloseTime, t.RealizedPL, t.RMultiple, t.Kind, t.Reason,
	)
	return err
}

// RecordEquity upserts on (book, time); re-recording a day replaces it.
func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO equity (book, time, balance, equity, open_positions)
		VALUES (?, ?, ?, ?, ?)`,
		e.Book, e.Time, e.Balance, e.Equity, e.Open,
	)
	return err
}

// RecordBacktest stores the run summary. Profit factors of +Inf are stored as -1.
func (j *SQLite) RecordBacktest(ctx context.Context, r BacktestRun) error {
	pf := r.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = -1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, strategy, symbols, start_date, end_date, trades, wins, losses,
		 start_balance, end_balance, net_pl, return_pct, win_rate, profit_factor, max_dd_pct, sharpe, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Strategy, strings.Join(r.Symbols, ","), r.Start, r.End,
		r.Trades, r.Wins, r.Losses, r.StartBalance, r.EndBalance, r.NetPL, r.ReturnPct,
		r.WinRate, pf, r.MaxDDPct, r.Sharpe, r.Config,
	)
	return err
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	var (
		r       BacktestRun
		symbols string
	)
	row := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, strategy, symbols, start_date, end_date, trades, wins, losses,
		       start_balance, end_balance, net_pl, return_pct, win_rate, profit_factor, max_dd_pct, sharpe, config
		FROM backtest_runs WHERE run_id = ?`, runID)
	err := row.Scan(&r.RunID, &r.Created, &r.Strategy, &symbols, &r.Start, &r.End,
		&r.Trades, &r.Wins, &r.Losses, &r.StartBalance, &r.EndBalance, &r.NetPL, &r.ReturnPct,
		&r.WinRate, &r.ProfitFactor, &r.MaxDDPct, &r.Sharpe, &r.Config)
	if errors.Is(err, sql.ErrNoRows) {
		return BacktestRun{}, fmt.Errorf("%q: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return BacktestRun{}, err
	}
	if r.ProfitFactor < 0 {
		r.ProfitFactor = math.Inf(1)
	}
	if symbols != "" {
		r.Symbols = strings.Split(symbols, ",")
	}
	return r, nil
}

// ListTrades returns the closed trades of a book ordered by close time.
func (j *SQLite) ListTrades(ctx context.Context, book string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT book, trade_id, class, symbol, direction, size, entry_price, exit_price, stop_loss, take_profit,
		       open_time, close_time, realized_pl, r_multiple, kind, reason
		FROM trades
		WHERE book = ?
		ORDER BY close_time ASC, trade_id ASC`, book)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(
			&rec.Book, &rec.TradeID, &rec.Class, &rec.Symbol, &rec.Direction, &rec.Size,
			&rec.EntryPrice, &rec.ExitPrice, &rec.StopLoss, &rec.TakeProfit,
			&rec.OpenTime, &rec.CloseTime, &rec.RealizedPL, &rec.RMultiple, &rec.Kind, &rec.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEquity returns a book's equity snapshots in time order.
func (j *SQLite) ListEquity(ctx context.Context, book string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT book, time, balance, equity, open_positions
		FROM equity
		WHERE book = ?
		ORDER BY time ASC`, book)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Book, &e.Time, &e.Balance, &e.Equity, &e.Open); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
