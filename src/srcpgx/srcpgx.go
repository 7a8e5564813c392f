// Package srcpgx provides a data source storing record documents as jsonb in postgres.
//
// All records are kept in one table keyed by resource and id. Writes append to an event table
// that the source also serves as event ledger.
package srcpgx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx"
	"github.com/mb0/feather/dom"
	"github.com/mb0/feather/evt"
	"github.com/mb0/feather/log"
	"github.com/mb0/feather/patch"
	"github.com/mb0/feather/src"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS feather_data (
	res text NOT NULL,
	id  text NOT NULL,
	seq bigserial,
	doc jsonb NOT NULL,
	PRIMARY KEY (res, id)
);
CREATE TABLE IF NOT EXISTS feather_event (
	id  bigserial PRIMARY KEY,
	rev timestamptz NOT NULL,
	top text NOT NULL,
	key text NOT NULL,
	cmd text NOT NULL,
	arg jsonb
);`

// C is the query interface shared by connection pools and transactions.
type C interface {
	ExecEx(context.Context, string, *pgx.QueryExOptions, ...interface{}) (pgx.CommandTag, error)
	QueryEx(context.Context, string, *pgx.QueryExOptions, ...interface{}) (*pgx.Rows, error)
	QueryRowEx(context.Context, string, *pgx.QueryExOptions, ...interface{}) *pgx.Row
}

// Open returns a new connection pool for dsn that logs warnings to l.
func Open(dsn string, l log.Logger) (*pgx.ConnPool, error) {
	conf, err := pgx.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parsing postgres dsn")
	}
	if l != nil {
		conf.Logger = pgxLogger{l}
		conf.LogLevel = pgx.LogLevelWarn
	}
	db, err := pgx.NewConnPool(pgx.ConnPoolConfig{ConnConfig: conf})
	if err != nil {
		return nil, errors.Wrap(err, "creating pgx connection pool")
	}
	_, err = db.Exec("SELECT 1")
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "opening first pgx connection")
	}
	return db, nil
}

// WithTx calls f with a new transaction that is committed if f returns no error.
func WithTx(ctx context.Context, db *pgx.ConnPool, f func(C) error) error {
	tx, err := db.BeginEx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	err = f(tx)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Source is a postgres data source and event ledger. It is safe for concurrent use.
type Source struct {
	DB      *pgx.ConnPool
	Catalog *dom.Catalog
	Log     log.Logger
	// Now returns the time used for timestamps and revisions, it defaults to time.Now.
	Now func() time.Time
}

// New returns a source for catalog c using the connection pool db.
func New(db *pgx.ConnPool, c *dom.Catalog, l log.Logger) *Source {
	return &Source{DB: db, Catalog: c, Log: log.Or(l)}
}

// Setup creates the data and event tables if they do not exist.
func (s *Source) Setup() error {
	_, err := s.DB.Exec(schema)
	return errors.Wrap(err, "setup feather tables")
}

// Drop removes the data and event tables.
func (s *Source) Drop() error {
	_, err := s.DB.Exec("DROP TABLE IF EXISTS feather_data, feather_event")
	return err
}

// Load inserts or replaces records keyed by data path without publishing events.
func (s *Source) Load(data map[string][]map[string]interface{}) error {
	return WithTx(context.Background(), s.DB, func(tx C) error {
		for path, list := range data {
			f, _, err := s.feather(path)
			if err != nil {
				return err
			}
			for _, rec := range list {
				doc, err := src.Doc(rec)
				if err != nil {
					return err
				}
				id, _ := doc[f.ID()].(string)
				if id == "" {
					return errors.Errorf("record without id in %s", path)
				}
				b, err := json.Marshal(doc)
				if err != nil {
					return err
				}
				_, err = tx.ExecEx(context.Background(), `INSERT INTO feather_data (res, id, doc)
					VALUES ($1, $2, $3::jsonb) ON CONFLICT (res, id) DO UPDATE SET doc = EXCLUDED.doc`,
					nil, f.Resource(), id, string(b))
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Source) feather(path string) (*dom.Feather, bool, error) {
	res, _, err := src.ParsePath(path)
	if err != nil {
		return nil, false, err
	}
	f, plural := s.Catalog.Resource(res)
	if f == nil {
		return nil, false, errors.Wrapf(src.ErrNotFound, "resource %s", res)
	}
	return f, plural, nil
}

// Request serves a data source request.
func (s *Source) Request(ctx context.Context, req *src.Request) (json.RawMessage, error) {
	f, plural, err := s.feather(req.Path)
	if err != nil {
		return nil, err
	}
	_, id, _ := src.ParsePath(req.Path)
	var res json.RawMessage
	switch req.Method {
	case src.GET:
		res, err = s.get(ctx, f, plural, id)
	case src.POST:
		if !plural || id != "" {
			return nil, errors.Errorf("post to %s, want plural resource", req.Path)
		}
		err = WithTx(ctx, s.DB, func(tx C) (err error) {
			res, err = s.post(ctx, tx, f, req.Data)
			return err
		})
	case src.PATCH:
		err = WithTx(ctx, s.DB, func(tx C) (err error) {
			res, err = s.patch(ctx, tx, f, id, req.Data)
			return err
		})
	case src.DELETE:
		err = WithTx(ctx, s.DB, func(tx C) (err error) {
			res, err = s.delete(ctx, tx, f, id)
			return err
		})
	default:
		err = errors.Errorf("unsupported method %s", req.Method)
	}
	if err != nil {
		s.Log.Debug("request failed", "req", req, "err", err)
		return nil, err
	}
	return res, nil
}

func (s *Source) get(ctx context.Context, f *dom.Feather, plural bool, id string) (json.RawMessage, error) {
	var raw string
	if id == "" {
		if !plural {
			return nil, errors.New("get without id")
		}
		err := s.DB.QueryRowEx(ctx, `SELECT coalesce(json_agg(doc ORDER BY seq)::text, '[]')
			FROM feather_data WHERE res = $1`, nil, f.Resource()).Scan(&raw)
		return json.RawMessage(raw), err
	}
	err := s.DB.QueryRowEx(ctx, `SELECT doc::text FROM feather_data WHERE res = $1 AND id = $2`,
		nil, f.Resource(), id).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(src.ErrNotFound, "record %s", id)
	}
	return json.RawMessage(raw), err
}

func (s *Source) post(ctx context.Context, tx C, f *dom.Feather, data interface{}) (json.RawMessage, error) {
	doc, err := src.Doc(data)
	if err != nil {
		return nil, err
	}
	id, res := src.PostFields(f, doc, src.Stamp(s.now()))
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	tag, err := tx.ExecEx(ctx, `INSERT INTO feather_data (res, id, doc) VALUES ($1, $2, $3::jsonb)
		ON CONFLICT DO NOTHING`, nil, f.Resource(), id, string(b))
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.Wrapf(src.ErrConflict, "record %s exists", id)
	}
	err = s.publish(ctx, tx, evt.Action{Sig: evt.Sig{Top: f.Resource(), Key: id}, Cmd: evt.CmdNew, Arg: b})
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (s *Source) patch(ctx context.Context, tx C, f *dom.Feather, id string, data interface{}) (json.RawMessage, error) {
	ops, err := src.DataPatch(data)
	if err != nil {
		return nil, err
	}
	var raw string
	err = tx.QueryRowEx(ctx, `SELECT doc::text FROM feather_data WHERE res = $1 AND id = $2 FOR UPDATE`,
		nil, f.Resource(), id).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, errors.Wrapf(src.ErrNotFound, "record %s", id)
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	err = json.Unmarshal([]byte(raw), &doc)
	if err != nil {
		return nil, err
	}
	next, err := patch.Apply(doc, ops)
	if err != nil {
		return nil, errors.Wrap(src.ErrConflict, err.Error())
	}
	res := src.PatchFields(f, src.Stamp(s.now()))
	if next, err = patch.Apply(next, res); err != nil {
		return nil, err
	}
	b, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecEx(ctx, `UPDATE feather_data SET doc = $3::jsonb WHERE res = $1 AND id = $2`,
		nil, f.Resource(), id, string(b))
	if err != nil {
		return nil, err
	}
	arg, err := json.Marshal(append(ops, res...))
	if err != nil {
		return nil, err
	}
	err = s.publish(ctx, tx, evt.Action{Sig: evt.Sig{Top: f.Resource(), Key: id}, Cmd: evt.CmdMod, Arg: arg})
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (s *Source) delete(ctx context.Context, tx C, f *dom.Feather, id string) (json.RawMessage, error) {
	tag, err := tx.ExecEx(ctx, `DELETE FROM feather_data WHERE res = $1 AND id = $2`, nil, f.Resource(), id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, errors.Wrapf(src.ErrNotFound, "record %s", id)
	}
	err = s.publish(ctx, tx, evt.Action{Sig: evt.Sig{Top: f.Resource(), Key: id}, Cmd: evt.CmdDel})
	if err != nil {
		return nil, err
	}
	return json.RawMessage("{}"), nil
}

func (s *Source) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type pgxLogger struct{ log.Logger }

func (l pgxLogger) Log(lvl pgx.LogLevel, msg string, data map[string]interface{}) {
	tags := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		tags = append(tags, k, v)
	}
	if lvl <= pgx.LogLevelError {
		l.Error(msg, tags...)
	} else {
		l.Debug(msg, tags...)
	}
}
