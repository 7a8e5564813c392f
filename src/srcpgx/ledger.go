package srcpgx

import (
	"context"
	"time"

	"github.com/mb0/feather/evt"
)

// publish appends the action to the event table with the next revision. The table is locked
// until the transaction ends to keep revisions ordered.
func (s *Source) publish(ctx context.Context, tx C, act evt.Action) error {
	_, err := tx.ExecEx(ctx, "LOCK TABLE feather_event IN EXCLUSIVE MODE", nil)
	if err != nil {
		return err
	}
	last, err := rev(ctx, tx)
	if err != nil {
		return err
	}
	var arg interface{}
	if len(act.Arg) > 0 {
		arg = string(act.Arg)
	}
	_, err = tx.ExecEx(ctx, `INSERT INTO feather_event (rev, top, key, cmd, arg)
		VALUES ($1, $2, $3, $4, $5::jsonb)`, nil,
		evt.NextRev(last, s.now()), act.Top, act.Key, act.Cmd, arg)
	return err
}

func rev(ctx context.Context, c C) (time.Time, error) {
	var res *time.Time
	err := c.QueryRowEx(ctx, "SELECT max(rev) FROM feather_event", nil).Scan(&res)
	if err != nil || res == nil {
		return time.Time{}, err
	}
	return res.UTC(), nil
}

// Rev returns the latest event revision or the zero time.
func (s *Source) Rev() time.Time {
	res, err := rev(context.Background(), s.DB)
	if err != nil {
		s.Log.Error("query ledger revision", "err", err)
	}
	return res
}

// Events returns the events after rev, optionally filtered by topic.
func (s *Source) Events(rev time.Time, tops ...string) ([]*evt.Event, error) {
	q := `SELECT id, rev, top, key, cmd, coalesce(arg::text, '') FROM feather_event WHERE rev > $1`
	args := []interface{}{rev}
	if len(tops) > 0 {
		q += " AND top = ANY($2)"
		args = append(args, tops)
	}
	rows, err := s.DB.QueryEx(context.Background(), q+" ORDER BY id", nil, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*evt.Event
	for rows.Next() {
		var ev evt.Event
		var arg string
		err = rows.Scan(&ev.ID, &ev.Rev, &ev.Top, &ev.Key, &ev.Cmd, &arg)
		if err != nil {
			return nil, err
		}
		if arg != "" {
			ev.Arg = []byte(arg)
		}
		ev.Rev = ev.Rev.UTC()
		res = append(res, &ev)
	}
	return res, rows.Err()
}
