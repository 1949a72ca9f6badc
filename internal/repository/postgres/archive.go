package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/internal/repository"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// ErrNotFound is returned when a game is not in the archive.
var ErrNotFound = repository.ErrNotFound

// Archive stores finished game documents along with flattened phases, orders
// and messages for querying.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// NewArchive creates an Archive.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db, now: time.Now}
}

// SaveGame writes or replaces a game.
func (a *Archive) SaveGame(ctx context.Context, doc history.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	winners := make([]string, len(doc.Winners))
	for i, w := range doc.Winners {
		winners[i] = string(w)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO games (id, map_name, status, winners, document, finished_at)
		 VALUES ($1, $2, 'finished', $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET map_name = EXCLUDED.map_name, status = EXCLUDED.status, winners = EXCLUDED.winners,
		     document = EXCLUDED.document, finished_at = EXCLUDED.finished_at`,
		doc.ID, doc.Map, pq.Array(winners), body, a.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}

	for _, table := range []string{"phases", "orders", "messages"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE game_id = $1`, doc.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for seq, rec := range doc.Phases {
		if err := insertPhase(ctx, tx, doc.ID, seq, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertPhase(ctx context.Context, tx *sql.Tx, gameID string, seq int, rec history.PhaseRecord) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	var season, kind string
	if pn, err := diplomacy.ParsePhaseName(rec.Name); err == nil {
		season, kind = string(pn.Season), string(pn.Kind)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO phases (game_id, seq, name, year, season, phase_type, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		gameID, seq, rec.Name, rec.Year, season, kind, state,
	)
	if err != nil {
		return fmt.Errorf("insert phase %s: %w", rec.Name, err)
	}

	for _, p := range diplomacy.AllPowers() {
		for _, text := range rec.Orders[p] {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO orders (game_id, phase_name, power, order_text, result)
				 VALUES ($1, $2, $3, $4, $5)`,
				gameID, rec.Name, string(p), text, orderResult(rec.Results, text),
			)
			if err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
		}
	}

	for _, m := range rec.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, game_id, phase_name, sender, recipient, body, sent_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.NewString(), gameID, rec.Name, string(m.Sender), string(m.Recipient), m.Body, m.SentAt,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return nil
}

// orderResult looks up the adjudication result for an order's unit. An empty
// result list means the order succeeded.
func orderResult(results map[string][]string, text string) string {
	o, err := diplomacy.ParseOrder(text)
	if err != nil || o.Kind == diplomacy.OrderWaive {
		return ""
	}
	key := diplomacy.Unit{Type: o.Unit, Location: o.Location}.String()
	res, ok := results[key]
	if !ok {
		return ""
	}
	if len(res) == 0 {
		return "ok"
	}
	return strings.Join(res, ",")
}

// LoadGame returns a stored document.
func (a *Archive) LoadGame(ctx context.Context, id string) (*history.Document, error) {
	var body []byte
	err := a.db.QueryRowContext(ctx, `SELECT document FROM games WHERE id = $1`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	var doc history.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// ListGames returns archived games, newest first.
func (a *Archive) ListGames(ctx context.Context) ([]model.GameSummary, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT g.id, g.map_name, g.status, g.winners, g.created_at, g.finished_at,
		        (SELECT count(*) FROM phases p WHERE p.game_id = g.id)
		 FROM games g
		 ORDER BY g.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []model.GameSummary
	for rows.Next() {
		var g model.GameSummary
		var finished sql.NullTime
		if err := rows.Scan(&g.ID, &g.Map, &g.Status, pq.Array(&g.Winners), &g.CreatedAt, &finished, &g.Phases); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			g.FinishedAt = &t
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// MessagesBetween returns archived messages exchanged between two powers,
// public ones included, in send order.
func (a *Archive) MessagesBetween(ctx context.Context, gameID string, x, y diplomacy.Power) ([]diplomacy.Message, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT sender, recipient, body, phase_name, sent_at
		 FROM messages
		 WHERE game_id = $1 AND (recipient = $4
		   OR (sender = $2 AND recipient = $3) OR (sender = $3 AND recipient = $2))
		 ORDER BY sent_at`, gameID, string(x), string(y), string(diplomacy.Global),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []diplomacy.Message
	for rows.Next() {
		var m diplomacy.Message
		var sender, recipient string
		if err := rows.Scan(&sender, &recipient, &m.Body, &m.Phase, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender, m.Recipient = diplomacy.Power(sender), diplomacy.Power(recipient)
		m.SentAt = m.SentAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteGame removes a game and its rows.
func (a *Archive) DeleteGame(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
